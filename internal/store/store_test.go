package store

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/tokenwatch/transferscan/internal/db"
	"github.com/tokenwatch/transferscan/internal/logger"
	"github.com/tokenwatch/transferscan/internal/migrations"
	"github.com/tokenwatch/transferscan/pkg/store"
)

func setupTestStore(t *testing.T) *SQLStore {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "store_test_*.db")
	require.NoError(t, err)
	tmpFile.Close()

	log := logger.NewNopLogger()
	require.NoError(t, migrations.RunMigrations(log, tmpFile.Name()))

	database, err := db.NewSQLiteDB(tmpFile.Name())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return New(database, log)
}

func testEvent(blockNum uint64, logIndex uint64, value string) *store.TransferEvent {
	return &store.TransferEvent{
		TxHash:      common.HexToHash(fmt.Sprintf("0x%064x", blockNum*1000+logIndex)),
		LogIndex:    logIndex,
		BlockNumber: blockNum,
		BlockHash:   testBlockHash(blockNum),
		From:        common.HexToAddress("0x000000000000000000000000000000000000000a"),
		To:          common.HexToAddress("0x000000000000000000000000000000000000000b"),
		Value:       value,
		Timestamp:   time.Unix(1700000000+int64(blockNum), 0).UTC(),
	}
}

func testBlock(blockNum uint64) *store.ProcessedBlock {
	return &store.ProcessedBlock{
		BlockNumber: blockNum,
		BlockHash:   testBlockHash(blockNum),
		Timestamp:   time.Unix(1700000000+int64(blockNum), 0).UTC(),
	}
}

func testBlockHash(blockNum uint64) common.Hash {
	return common.HexToHash(fmt.Sprintf("0x%064x", blockNum))
}

func commitRange(t *testing.T, s *SQLStore, from, to uint64, events ...*store.TransferEvent) {
	t.Helper()

	blocks := make([]*store.ProcessedBlock, 0, to-from+1)
	for n := from; n <= to; n++ {
		blocks = append(blocks, testBlock(n))
	}
	require.NoError(t, s.CommitBatch(context.Background(), events, blocks))
}

func TestSQLStore_CommitBatch_Empty(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// An empty batch still records its processed blocks.
	commitRange(t, s, 100, 109)

	last, ok, err := s.LastProcessedBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(109), last)

	events, err := s.QueryEvents(ctx, store.QueryFilter{})
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSQLStore_CommitBatch_EventAndBlockAgree(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ev := testEvent(105, 3, "1000000")
	commitRange(t, s, 100, 109, ev)

	events, err := s.QueryEvents(ctx, store.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, ev.TxHash, events[0].TxHash)
	require.Equal(t, ev.BlockHash, events[0].BlockHash)
	require.Equal(t, "1000000", events[0].Value)
	require.Equal(t, ev.Timestamp, events[0].Timestamp)

	// The event's block hash matches the stored processed block.
	hashes, err := s.RecentBlockHashes(ctx, 10)
	require.NoError(t, err)
	byNum := make(map[uint64]common.Hash)
	for _, h := range hashes {
		byNum[h.BlockNumber] = h.BlockHash
	}
	require.Equal(t, events[0].BlockHash, byNum[105])
}

func TestSQLStore_CommitBatch_AbsorbsDuplicateEvents(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ev := testEvent(100, 0, "42")
	commitRange(t, s, 100, 100, ev)

	// Replaying the same (tx_hash, log_index) must leave exactly one row
	// and succeed, keeping the existing values.
	dup := *ev
	dup.Value = "43"
	commitRange(t, s, 100, 100, &dup)

	events, err := s.QueryEvents(ctx, store.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "42", events[0].Value)
}

func TestSQLStore_CommitBatch_UpsertsProcessedBlocks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	commitRange(t, s, 100, 100)

	// A reorg replay of block 100 with a different hash overwrites the row.
	newHash := common.HexToHash("0xdead")
	require.NoError(t, s.CommitBatch(ctx, nil, []*store.ProcessedBlock{{
		BlockNumber: 100,
		BlockHash:   newHash,
		Timestamp:   time.Unix(1700000500, 0).UTC(),
	}}))

	hashes, err := s.RecentBlockHashes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	require.Equal(t, newHash, hashes[0].BlockHash)
}

func TestSQLStore_ProcessedBlocksContiguous(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	commitRange(t, s, 100, 109)
	commitRange(t, s, 110, 119)

	hashes, err := s.RecentBlockHashes(ctx, 100)
	require.NoError(t, err)
	require.Len(t, hashes, 20)

	// Descending and gap-free.
	for i, h := range hashes {
		require.Equal(t, uint64(119-i), h.BlockNumber)
	}
}

func TestSQLStore_RollbackFrom(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	commitRange(t, s, 100, 110,
		testEvent(105, 0, "1"),
		testEvent(108, 0, "2"),
		testEvent(110, 0, "3"),
	)

	require.NoError(t, s.RollbackFrom(ctx, 108))

	last, ok, err := s.LastProcessedBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(107), last)

	events, err := s.QueryEvents(ctx, store.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, uint64(105), events[0].BlockNumber)
}

func TestSQLStore_LastProcessedBlock_Empty(t *testing.T) {
	s := setupTestStore(t)

	_, ok, err := s.LastProcessedBlock(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLStore_QueryEvents_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	addrA := common.HexToAddress("0x000000000000000000000000000000000000000a")
	addrC := common.HexToAddress("0x000000000000000000000000000000000000000c")

	sent := testEvent(100, 0, "1")
	received := testEvent(150, 0, "2")
	received.From = addrC
	received.To = addrA
	unrelated := testEvent(200, 0, "3")
	unrelated.From = addrC
	unrelated.To = addrC

	commitRange(t, s, 100, 200, sent, received, unrelated)

	// Address matches sender or recipient.
	events, err := s.QueryEvents(ctx, store.QueryFilter{Address: &addrA})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Block range bounds are inclusive.
	from, to := uint64(100), uint64(150)
	events, err = s.QueryEvents(ctx, store.QueryFilter{FromBlock: &from, ToBlock: &to})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Combined.
	events, err = s.QueryEvents(ctx, store.QueryFilter{Address: &addrA, FromBlock: &from, ToBlock: &to})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestSQLStore_QueryEvents_OrderAndLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	evs := []*store.TransferEvent{
		testEvent(100, 0, "1"),
		testEvent(100, 5, "2"),
		testEvent(101, 2, "3"),
		testEvent(101, 7, "4"),
	}
	commitRange(t, s, 100, 101, evs...)

	events, err := s.QueryEvents(ctx, store.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 4)

	// Descending by (block_number, log_index).
	require.Equal(t, uint64(101), events[0].BlockNumber)
	require.Equal(t, uint64(7), events[0].LogIndex)
	require.Equal(t, uint64(101), events[1].BlockNumber)
	require.Equal(t, uint64(2), events[1].LogIndex)
	require.Equal(t, uint64(100), events[2].BlockNumber)
	require.Equal(t, uint64(5), events[2].LogIndex)

	events, err = s.QueryEvents(ctx, store.QueryFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestSQLStore_QueryEvents_ValueBoundaries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	maxValue := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	zero := testEvent(100, 0, "0")
	huge := testEvent(100, 1, maxValue.String())
	commitRange(t, s, 100, 100, zero, huge)

	events, err := s.QueryEvents(ctx, store.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	byIndex := map[uint64]string{}
	for _, ev := range events {
		byIndex[ev.LogIndex] = ev.Value
	}
	require.Equal(t, "0", byIndex[0])
	require.Equal(t, maxValue.String(), byIndex[1])

	// The canonical decimal string round-trips to the original integer.
	parsed, ok := new(big.Int).SetString(byIndex[1], 10)
	require.True(t, ok)
	require.Zero(t, parsed.Cmp(maxValue))
	require.False(t, strings.HasPrefix(byIndex[1], "0"))
}

func TestSQLStore_Stats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalTransfers)
	require.Nil(t, stats.LatestBlock)
	require.Nil(t, stats.LastProcessed)

	commitRange(t, s, 100, 120,
		testEvent(105, 0, "1"),
		testEvent(110, 0, "2"),
	)

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalTransfers)
	require.Equal(t, int64(2), stats.UniqueAddresses)
	require.Equal(t, uint64(105), *stats.EarliestBlock)
	require.Equal(t, uint64(110), *stats.LatestBlock)
	require.Equal(t, uint64(100), *stats.FirstProcessed)
	require.Equal(t, uint64(120), *stats.LastProcessed)
}

func TestSQLStore_LimitNormalization(t *testing.T) {
	require.Equal(t, store.DefaultQueryLimit, normalizeLimit(0))
	require.Equal(t, store.DefaultQueryLimit, normalizeLimit(-5))
	require.Equal(t, 50, normalizeLimit(50))
	require.Equal(t, store.MaxQueryLimit, normalizeLimit(store.MaxQueryLimit+1))
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/russross/meddler"
	_ "github.com/tokenwatch/transferscan/internal/db" // registers the hash, address and utctime meddlers
	"github.com/tokenwatch/transferscan/internal/logger"
	pkgstore "github.com/tokenwatch/transferscan/pkg/store"
)

// Compile-time check to ensure SQLStore implements pkgstore.Store.
var _ pkgstore.Store = (*SQLStore)(nil)

// SQLStore persists transfer events and progress metadata in SQLite.
//
// Writes are serialized by the single-writer contract (one scanner per
// store); readers run concurrently on WAL snapshots. Every commit is one
// transaction, so readers never observe a partially applied batch.
type SQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// New creates a store over an open database.
func New(db *sql.DB, log *logger.Logger) *SQLStore {
	return &SQLStore{
		db:  db,
		log: log.WithComponent("store"),
	}
}

// CommitBatch atomically persists a batch of events and processed blocks.
// Events replayed after a crash or a reorg recovery are absorbed: a
// duplicate (transaction_hash, log_index) leaves the existing row untouched,
// and a duplicate block_number overwrites the stored hash and timestamps.
func (s *SQLStore) CommitBatch(
	ctx context.Context,
	events []*pkgstore.TransferEvent,
	blocks []*pkgstore.ProcessedBlock,
) error {
	start := time.Now()

	// Commit order inside the batch is (block_number, log_index) ascending.
	sorted := make([]*pkgstore.TransferEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].BlockNumber != sorted[j].BlockNumber {
			return sorted[i].BlockNumber < sorted[j].BlockNumber
		}
		return sorted[i].LogIndex < sorted[j].LogIndex
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	eventStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transfer_events
			(transaction_hash, log_index, block_number, block_hash,
			 from_address, to_address, value, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_hash, log_index) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer eventStmt.Close()

	for _, ev := range sorted {
		createdAt := ev.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := eventStmt.ExecContext(ctx,
			ev.TxHash.Hex(),
			ev.LogIndex,
			ev.BlockNumber,
			ev.BlockHash.Hex(),
			ev.From.Hex(),
			ev.To.Hex(),
			ev.Value,
			ev.Timestamp.UTC().Unix(),
			createdAt.Unix(),
		); err != nil {
			return fmt.Errorf("failed to insert event %s/%d: %w", ev.TxHash.Hex(), ev.LogIndex, err)
		}
	}

	blockStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO processed_blocks (block_number, block_hash, timestamp, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(block_number) DO UPDATE SET
			block_hash = excluded.block_hash,
			timestamp = excluded.timestamp,
			processed_at = excluded.processed_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare block insert: %w", err)
	}
	defer blockStmt.Close()

	for _, b := range blocks {
		processedAt := b.ProcessedAt
		if processedAt.IsZero() {
			processedAt = time.Now().UTC()
		}

		if _, err := blockStmt.ExecContext(ctx,
			b.BlockNumber,
			b.BlockHash.Hex(),
			b.Timestamp.UTC().Unix(),
			processedAt.Unix(),
		); err != nil {
			return fmt.Errorf("failed to insert processed block %d: %w", b.BlockNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	commitLog(len(sorted), len(blocks), time.Since(start))

	s.log.Debugf("committed batch: events=%d blocks=%d elapsed=%s",
		len(sorted), len(blocks), time.Since(start))

	return nil
}

// RollbackFrom deletes every event and processed block at or above blockNum.
// Used by the reorg recovery path.
func (s *SQLStore) RollbackFrom(ctx context.Context, blockNum uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	eventsRes, err := tx.ExecContext(ctx,
		"DELETE FROM transfer_events WHERE block_number >= ?", blockNum)
	if err != nil {
		return fmt.Errorf("failed to delete events from block %d: %w", blockNum, err)
	}

	blocksRes, err := tx.ExecContext(ctx,
		"DELETE FROM processed_blocks WHERE block_number >= ?", blockNum)
	if err != nil {
		return fmt.Errorf("failed to delete processed blocks from block %d: %w", blockNum, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	deletedEvents, _ := eventsRes.RowsAffected()
	deletedBlocks, _ := blocksRes.RowsAffected()
	rollbackLog(deletedEvents, deletedBlocks)

	s.log.Warnf("rolled back store: from_block=%d deleted_events=%d deleted_blocks=%d",
		blockNum, deletedEvents, deletedBlocks)

	return nil
}

// LastProcessedBlock returns the highest processed block number, with
// ok=false when nothing has been processed yet.
func (s *SQLStore) LastProcessedBlock(ctx context.Context) (uint64, bool, error) {
	var maxBlock sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(block_number) FROM processed_blocks").Scan(&maxBlock)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get last processed block: %w", err)
	}

	if !maxBlock.Valid {
		return 0, false, nil
	}

	return uint64(maxBlock.Int64), true, nil
}

// RecentBlockHashes returns the top-k processed blocks by block number
// descending.
func (s *SQLStore) RecentBlockHashes(ctx context.Context, k uint64) ([]pkgstore.BlockHash, error) {
	var rows []*pkgstore.BlockHash
	err := meddler.QueryAll(s.db, &rows, `
		SELECT block_number, block_hash FROM processed_blocks
		ORDER BY block_number DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent block hashes: %w", err)
	}

	result := make([]pkgstore.BlockHash, len(rows))
	for i, r := range rows {
		result[i] = *r
	}

	return result, nil
}

// QueryEvents returns transfer events matching the filter, ordered by
// (block_number, log_index) descending. The read runs on a single WAL
// snapshot and never blocks the writer.
func (s *SQLStore) QueryEvents(
	ctx context.Context,
	filter pkgstore.QueryFilter,
) ([]*pkgstore.TransferEvent, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.Address != nil {
		conditions = append(conditions, "(from_address = ? OR to_address = ?)")
		hex := filter.Address.Hex()
		args = append(args, hex, hex)
	}
	if filter.FromBlock != nil {
		conditions = append(conditions, "block_number >= ?")
		args = append(args, *filter.FromBlock)
	}
	if filter.ToBlock != nil {
		conditions = append(conditions, "block_number <= ?")
		args = append(args, *filter.ToBlock)
	}

	query := "SELECT * FROM transfer_events"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY block_number DESC, log_index DESC LIMIT ?"
	args = append(args, normalizeLimit(filter.Limit))

	var events []*pkgstore.TransferEvent
	if err := meddler.QueryAll(s.db, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	return events, nil
}

// Stats returns aggregate counts and the indexed and processed block ranges.
func (s *SQLStore) Stats(ctx context.Context) (*pkgstore.Stats, error) {
	stats := &pkgstore.Stats{}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transfer_events").Scan(&stats.TotalTransfers)
	if err != nil {
		return nil, fmt.Errorf("failed to count transfers: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT address) FROM (
			SELECT from_address AS address FROM transfer_events
			UNION
			SELECT to_address AS address FROM transfer_events
		)`).Scan(&stats.UniqueAddresses)
	if err != nil {
		return nil, fmt.Errorf("failed to count unique addresses: %w", err)
	}

	var minEvent, maxEvent sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		"SELECT MIN(block_number), MAX(block_number) FROM transfer_events").
		Scan(&minEvent, &maxEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to get event block range: %w", err)
	}
	if minEvent.Valid {
		v := uint64(minEvent.Int64)
		stats.EarliestBlock = &v
	}
	if maxEvent.Valid {
		v := uint64(maxEvent.Int64)
		stats.LatestBlock = &v
	}

	var minProcessed, maxProcessed sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		"SELECT MIN(block_number), MAX(block_number) FROM processed_blocks").
		Scan(&minProcessed, &maxProcessed)
	if err != nil {
		return nil, fmt.Errorf("failed to get processed block range: %w", err)
	}
	if minProcessed.Valid {
		v := uint64(minProcessed.Int64)
		stats.FirstProcessed = &v
	}
	if maxProcessed.Valid {
		v := uint64(maxProcessed.Int64)
		stats.LastProcessed = &v
	}

	return stats, nil
}

// normalizeLimit applies the default and the hard cap.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return pkgstore.DefaultQueryLimit
	}
	if limit > pkgstore.MaxQueryLimit {
		return pkgstore.MaxQueryLimit
	}
	return limit
}

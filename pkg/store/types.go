package store

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransferEvent is one indexed Transfer log. Identified by
// (transaction_hash, log_index), which is unique on a canonical chain.
type TransferEvent struct {
	TxHash      common.Hash    `meddler:"transaction_hash,hash" json:"transaction_hash"`
	LogIndex    uint64         `meddler:"log_index" json:"log_index"`
	BlockNumber uint64         `meddler:"block_number" json:"block_number"`
	BlockHash   common.Hash    `meddler:"block_hash,hash" json:"block_hash"`
	From        common.Address `meddler:"from_address,address" json:"from_address"`
	To          common.Address `meddler:"to_address,address" json:"to_address"`
	Value       string         `meddler:"value" json:"value"`
	Timestamp   time.Time      `meddler:"timestamp,utctime" json:"timestamp"`
	CreatedAt   time.Time      `meddler:"created_at,utctime" json:"-"`
}

// ProcessedBlock records one block the scanner has observed, whether or not
// it contained matching logs. Block numbers form a contiguous range.
type ProcessedBlock struct {
	BlockNumber uint64      `meddler:"block_number" json:"block_number"`
	BlockHash   common.Hash `meddler:"block_hash,hash" json:"block_hash"`
	Timestamp   time.Time   `meddler:"timestamp,utctime" json:"timestamp"`
	ProcessedAt time.Time   `meddler:"processed_at,utctime" json:"processed_at"`
}

// BlockHash pairs a block number with its stored hash.
type BlockHash struct {
	BlockNumber uint64      `meddler:"block_number"`
	BlockHash   common.Hash `meddler:"block_hash,hash"`
}

// QueryFilter narrows a transfer event query. Zero values mean "no filter".
type QueryFilter struct {
	// Address matches events where it equals either the sender or the
	// recipient.
	Address *common.Address

	// FromBlock and ToBlock bound the block range, inclusive.
	FromBlock *uint64
	ToBlock   *uint64

	// Limit caps the number of returned rows. Defaults to DefaultQueryLimit,
	// capped at MaxQueryLimit.
	Limit int
}

const (
	// DefaultQueryLimit is used when a query does not specify a limit.
	DefaultQueryLimit = 100

	// MaxQueryLimit is the hard cap on rows returned by a single query.
	MaxQueryLimit = 10_000
)

// Stats summarizes the indexed data set.
type Stats struct {
	TotalTransfers  int64   `json:"total_transfers"`
	UniqueAddresses int64   `json:"unique_addresses"`
	EarliestBlock   *uint64 `json:"earliest_block,omitempty"`
	LatestBlock     *uint64 `json:"latest_block,omitempty"`
	FirstProcessed  *uint64 `json:"first_processed_block,omitempty"`
	LastProcessed   *uint64 `json:"last_processed_block,omitempty"`
}

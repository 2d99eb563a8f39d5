// Package store defines the persistence contract between the scanner, the
// reorg detector and the query surfaces.
package store

import "context"

// Querier is the read-only access used by the CLI and the HTTP API. Reads
// run on snapshots and never block commits beyond a single snapshot read.
type Querier interface {
	// QueryEvents returns transfer events matching the filter, ordered by
	// (block_number, log_index) descending.
	QueryEvents(ctx context.Context, filter QueryFilter) ([]*TransferEvent, error)

	// Stats returns aggregate counts and the processed block range.
	Stats(ctx context.Context) (*Stats, error)
}

// Store is the full persistence contract. There must be exactly one writer
// (the scanner) per store; readers run concurrently.
type Store interface {
	Querier

	// CommitBatch atomically persists events and blocks. Either all rows
	// persist or none do. Duplicate (transaction_hash, log_index) pairs are
	// silently absorbed; duplicate block numbers overwrite the stored hash
	// and timestamp so a reorg replay converges.
	CommitBatch(ctx context.Context, events []*TransferEvent, blocks []*ProcessedBlock) error

	// RollbackFrom atomically deletes all events and processed blocks with
	// block_number >= blockNum.
	RollbackFrom(ctx context.Context, blockNum uint64) error

	// LastProcessedBlock returns the highest processed block number, with
	// ok=false when the store is empty.
	LastProcessedBlock(ctx context.Context) (blockNum uint64, ok bool, err error)

	// RecentBlockHashes returns the top-k processed blocks ordered by block
	// number descending.
	RecentBlockHashes(ctx context.Context, k uint64) ([]BlockHash, error)
}

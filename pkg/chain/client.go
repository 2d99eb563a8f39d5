// Package chain defines the chain client capabilities the indexing core
// consumes. Implementations wrap an Ethereum JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrBlockNotFound is returned by BlockHeader when the requested height is
// pruned or not yet mined.
var ErrBlockNotFound = errors.New("block not found")

// Client abstracts the chain RPC surface used by the scanner and the reorg
// detector. Implementations must be safe for concurrent use; a single handle
// is shared between both.
type Client interface {
	// HeadBlockNumber returns the latest block number the node considers
	// part of its chain.
	HeadBlockNumber(ctx context.Context) (uint64, error)

	// BlockHeader fetches the header for a specific block number. It returns
	// an error wrapping ErrBlockNotFound when the height does not exist.
	BlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error)

	// BatchBlockHeaders fetches headers for the given block numbers using
	// batched calls, returned in the same order.
	BatchBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error)

	// FilterLogs fetches logs emitted by address in the inclusive block range
	// [fromBlock, toBlock] whose first topic equals topic0.
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 common.Hash) ([]types.Log, error)
}

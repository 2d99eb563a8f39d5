package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/tokenwatch/transferscan/pkg/chain"
	"github.com/tokenwatch/transferscan/pkg/config"
)

// Compile-time check to ensure Client implements chain.Client.
var _ chain.Client = (*Client)(nil)

const headerBatchLimit = 100

// Client wraps the Ethereum RPC client. A single handle is shared by the
// scanner and the reorg detector; the underlying connection pool makes it
// cheap to share.
type Client struct {
	eth *ethclient.Client
	rpc *rpc.Client
	cfg config.RPCConfig
}

// NewClient creates a new RPC client connected to the configured endpoint.
func NewClient(ctx context.Context, cfg config.RPCConfig) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.URL, err)
	}

	return &Client{
		eth: ethclient.NewClient(rpcClient),
		rpc: rpcClient,
		cfg: cfg,
	}, nil
}

// Close closes the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// HeadBlockNumber returns the latest block number of the node's chain.
func (c *Client) HeadBlockNumber(ctx context.Context) (uint64, error) {
	var head uint64

	err := c.call(ctx, "eth_blockNumber", func(callCtx context.Context) error {
		n, err := c.eth.BlockNumber(callCtx)
		if err != nil {
			return err
		}
		head = n
		return nil
	})

	return head, err
}

// BlockHeader fetches the header for a specific block number. Pruned or
// not-yet-mined heights surface as chain.ErrBlockNotFound.
func (c *Client) BlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	var header *types.Header

	err := c.call(ctx, "eth_getBlockByNumber", func(callCtx context.Context) error {
		h, err := c.eth.HeaderByNumber(callCtx, new(big.Int).SetUint64(blockNum))
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return fmt.Errorf("header %d: %w", blockNum, chain.ErrBlockNotFound)
			}
			return err
		}
		header = h
		return nil
	})

	return header, err
}

// BatchBlockHeaders fetches headers for the given block numbers using batched
// JSON-RPC calls, chunked to stay under provider batch limits. A null result
// for any height surfaces as chain.ErrBlockNotFound.
func (c *Client) BatchBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	allResults := make([]*types.Header, 0, len(blockNums))

	for i := 0; i < len(blockNums); i += headerBatchLimit {
		end := min(i+headerBatchLimit, len(blockNums))
		chunk := blockNums[i:end]

		batch := make([]rpc.BatchElem, len(chunk))
		results := make([]*types.Header, len(chunk))

		for j, blockNum := range chunk {
			batch[j] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []any{toBlockNumArg(blockNum), false},
				Result: &results[j],
			}
		}

		err := c.call(ctx, "eth_getBlockByNumber/batch", func(callCtx context.Context) error {
			return c.rpc.BatchCallContext(callCtx, batch)
		})
		if err != nil {
			return nil, err
		}

		for j, elem := range batch {
			if elem.Error != nil {
				return nil, fmt.Errorf("batch header %d: %w", chunk[j], elem.Error)
			}
			if results[j] == nil {
				return nil, fmt.Errorf("batch header %d: %w", chunk[j], chain.ErrBlockNotFound)
			}
		}

		allResults = append(allResults, results...)
	}

	return allResults, nil
}

// FilterLogs fetches logs emitted by address in [fromBlock, toBlock] whose
// topic0 matches. Filtering at the RPC layer moves the bulk of the work onto
// the node.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock, toBlock uint64,
	address common.Address,
	topic0 common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic0}},
	}

	var logs []types.Log

	err := c.call(ctx, "eth_getLogs", func(callCtx context.Context) error {
		result, err := c.eth.FilterLogs(callCtx, query)
		if err != nil {
			return err
		}
		logs = result
		return nil
	})

	return logs, err
}

// call runs one RPC operation with the per-call timeout and retry policy,
// recording metrics per operation.
func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	rpcRequestsInc(operation)

	err := retryWithBackoff(ctx, c.cfg.Retry, operation, func() error {
		callCtx := ctx
		if c.cfg.RequestTimeout.Duration > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout.Duration)
			defer cancel()
		}
		return fn(callCtx)
	})
	if err != nil {
		rpcErrorsInc(operation, Classify(err).String())
	}

	return err
}

// toBlockNumArg converts a block number to the hex form the RPC expects.
func toBlockNumArg(blockNum uint64) string {
	return fmt.Sprintf("0x%x", blockNum)
}

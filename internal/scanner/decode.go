package scanner

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	pkgstore "github.com/tokenwatch/transferscan/pkg/store"
)

// TransferTopic is the keccak-256 hash of the canonical ERC-20 transfer
// signature, used as the topic0 filter:
// 0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

const (
	// Transfer(address indexed from, address indexed to, uint256 value)
	// carries the signature plus two indexed parameters.
	transferTopicCount = 3

	// The unindexed value is a single 32-byte ABI word.
	transferDataSize = 32
)

// decodeTransfer maps a raw log and its block header to a TransferEvent.
// The addresses are the low 20 bytes of topics 1 and 2; the value is the
// big-endian data word rendered as a canonical decimal string, never
// narrowed to a native integer.
func decodeTransfer(lg *types.Log, header *types.Header) (*pkgstore.TransferEvent, error) {
	if len(lg.Topics) != transferTopicCount {
		return nil, fmt.Errorf("expected %d topics, got %d", transferTopicCount, len(lg.Topics))
	}
	if len(lg.Data) != transferDataSize {
		return nil, fmt.Errorf("expected %d data bytes, got %d", transferDataSize, len(lg.Data))
	}

	return &pkgstore.TransferEvent{
		TxHash:      lg.TxHash,
		LogIndex:    uint64(lg.Index),
		BlockNumber: lg.BlockNumber,
		BlockHash:   header.Hash(),
		From:        common.BytesToAddress(lg.Topics[1].Bytes()),
		To:          common.BytesToAddress(lg.Topics[2].Bytes()),
		Value:       new(big.Int).SetBytes(lg.Data).String(),
		Timestamp:   time.Unix(int64(header.Time), 0).UTC(),
	}, nil
}

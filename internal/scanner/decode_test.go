package scanner

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func transferLog(from, to common.Address, value *big.Int) *types.Log {
	data := make([]byte, 32)
	value.FillBytes(data)

	return &types.Log{
		Address:     common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Topics:      []common.Hash{TransferTopic, addressTopic(from), addressTopic(to)},
		Data:        data,
		BlockNumber: 18_500_000,
		TxHash:      common.HexToHash("0xabc123"),
		Index:       7,
	}
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func TestTransferTopic(t *testing.T) {
	// keccak256("Transfer(address,address,uint256)")
	require.Equal(t,
		"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
		TransferTopic.Hex(),
	)
}

func TestDecodeTransfer(t *testing.T) {
	from := common.HexToAddress("0x000000000000000000000000000000000000000A")
	to := common.HexToAddress("0x000000000000000000000000000000000000000B")
	header := &types.Header{
		Number:     big.NewInt(18_500_000),
		Time:       1_700_000_000,
		Difficulty: big.NewInt(1),
	}

	// 1000000 = 1.000000 USDC
	ev, err := decodeTransfer(transferLog(from, to, big.NewInt(1_000_000)), header)
	require.NoError(t, err)

	require.Equal(t, from, ev.From)
	require.Equal(t, to, ev.To)
	require.Equal(t, "1000000", ev.Value)
	require.Equal(t, uint64(18_500_000), ev.BlockNumber)
	require.Equal(t, header.Hash(), ev.BlockHash)
	require.Equal(t, uint64(7), ev.LogIndex)
	require.Equal(t, int64(1_700_000_000), ev.Timestamp.Unix())
	require.Equal(t, "UTC", ev.Timestamp.Location().String())
}

func TestDecodeTransfer_ValueBoundaries(t *testing.T) {
	from := common.HexToAddress("0x0a")
	to := common.HexToAddress("0x0b")
	header := &types.Header{Number: big.NewInt(1), Difficulty: big.NewInt(1)}

	ev, err := decodeTransfer(transferLog(from, to, big.NewInt(0)), header)
	require.NoError(t, err)
	require.Equal(t, "0", ev.Value)

	maxValue := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	ev, err = decodeTransfer(transferLog(from, to, maxValue), header)
	require.NoError(t, err)
	require.Equal(t, maxValue.String(), ev.Value)

	// The stored decimal string round-trips to the original bytes.
	parsed, ok := new(big.Int).SetString(ev.Value, 10)
	require.True(t, ok)
	expected := make([]byte, 32)
	maxValue.FillBytes(expected)
	actual := make([]byte, 32)
	parsed.FillBytes(actual)
	require.Equal(t, expected, actual)
}

func TestDecodeTransfer_Malformed(t *testing.T) {
	from := common.HexToAddress("0x0a")
	to := common.HexToAddress("0x0b")
	header := &types.Header{Number: big.NewInt(1), Difficulty: big.NewInt(1)}

	// Missing indexed parameter.
	lg := transferLog(from, to, big.NewInt(1))
	lg.Topics = lg.Topics[:2]
	_, err := decodeTransfer(lg, header)
	require.Error(t, err)

	// Data word of the wrong size.
	lg = transferLog(from, to, big.NewInt(1))
	lg.Data = lg.Data[:31]
	_, err = decodeTransfer(lg, header)
	require.Error(t, err)

	// Empty data.
	lg = transferLog(from, to, big.NewInt(1))
	lg.Data = nil
	_, err = decodeTransfer(lg, header)
	require.Error(t, err)
}

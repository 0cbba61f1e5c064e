package paymaster

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackPaymasterAndDataLayout(t *testing.T) {
	vp := &VerifyingPaymaster{Address: common.HexToAddress("0x0000000000325602a77416A16136FDafd04b299f")}

	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = 0xab
	}

	data, err := vp.PackPaymasterAndData(sig, big.NewInt(1800000000), big.NewInt(0))
	require.NoError(t, err)

	// address ++ abi.encode(uint48,uint48) ++ sig
	require.Equal(t, 20+64+65, len(data))
	assert.Equal(t, vp.Address.Bytes(), data[:20])
	assert.Equal(t, big.NewInt(1800000000), new(big.Int).SetBytes(data[20:52]))
	assert.Equal(t, int64(0), new(big.Int).SetBytes(data[52:84]).Int64())
	assert.Equal(t, sig, data[84:])
}

func TestPackPaymasterAndDataRejectsShortSignature(t *testing.T) {
	vp := &VerifyingPaymaster{Address: common.HexToAddress("0x01")}

	_, err := vp.PackPaymasterAndData([]byte{0x01, 0x02}, big.NewInt(1), big.NewInt(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "65 bytes")
}

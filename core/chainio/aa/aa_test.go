package aa

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInitCodeLayout(t *testing.T) {
	factoryAddr := common.HexToAddress("0xB99BC2E399e06CddCF5E725c0ea341E8f0322834")
	ownerAddr := common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")

	initCodeHex, err := GetInitCodeForFactory(ownerAddr.Hex(), factoryAddr, big.NewInt(0))
	require.NoError(t, err)

	initCode, err := hexutil.Decode(initCodeHex)
	require.NoError(t, err)

	// factory address (20) + createAccount selector (4) + owner (32) + salt (32)
	require.Len(t, initCode, 20+4+64)
	assert.Equal(t, factoryAddr.Bytes(), initCode[:20])

	selector := crypto.Keccak256([]byte("createAccount(address,uint256)"))[:4]
	assert.Equal(t, selector, initCode[20:24])
	assert.Equal(t, ownerAddr.Bytes(), initCode[36:56], "owner is right-aligned in the first argument word")
}

func TestGetInitCodeNilSaltDefaultsToZero(t *testing.T) {
	factoryAddr := common.HexToAddress("0xB99BC2E399e06CddCF5E725c0ea341E8f0322834")
	ownerAddr := common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")

	withNil, err := GetInitCodeForFactory(ownerAddr.Hex(), factoryAddr, nil)
	require.NoError(t, err)
	withZero, err := GetInitCodeForFactory(ownerAddr.Hex(), factoryAddr, big.NewInt(0))
	require.NoError(t, err)

	assert.Equal(t, withZero, withNil)
}

func TestComputeSmartWalletAddress_CREATE2Formula(t *testing.T) {
	factoryAddr := common.HexToAddress("0xB99BC2E399e06CddCF5E725c0ea341E8f0322834")
	ownerAddr := common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")
	salt := big.NewInt(0)

	computedAddr, err := computeSmartWalletAddress(factoryAddr, ownerAddr, salt)
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, computedAddr)

	computedAddr2, err := computeSmartWalletAddress(factoryAddr, ownerAddr, salt)
	require.NoError(t, err)
	assert.Equal(t, computedAddr, computedAddr2, "address computation should be deterministic")

	// verify keccak256(0xff || factory || salt || keccak256(initCode))[12:] manually
	initCodeHex, err := GetInitCodeForFactory(ownerAddr.Hex(), factoryAddr, salt)
	require.NoError(t, err)
	initCodeBytes, err := hexutil.Decode(initCodeHex)
	require.NoError(t, err)

	saltBytes := make([]byte, 32)
	salt.FillBytes(saltBytes)

	var b []byte
	b = append(b, 0xff)
	b = append(b, factoryAddr.Bytes()...)
	b = append(b, saltBytes...)
	b = append(b, crypto.Keccak256(initCodeBytes)...)
	expectedAddr := common.BytesToAddress(crypto.Keccak256(b)[12:])

	assert.Equal(t, expectedAddr, computedAddr)
}

func TestComputeSmartWalletAddress_Distinctness(t *testing.T) {
	factory1 := common.HexToAddress("0xB99BC2E399e06CddCF5E725c0ea341E8f0322834")
	factory2 := common.HexToAddress("0x0000000000000000000000000000000000000001")
	owner1 := common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")
	owner2 := common.HexToAddress("0x578B110b0a7c06e66b7B1a33C39635304aaF733c")

	base, err := computeSmartWalletAddress(factory1, owner1, big.NewInt(0))
	require.NoError(t, err)

	otherSalt, err := computeSmartWalletAddress(factory1, owner1, big.NewInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, base, otherSalt, "different salts should produce different addresses")

	otherOwner, err := computeSmartWalletAddress(factory1, owner2, big.NewInt(0))
	require.NoError(t, err)
	assert.NotEqual(t, base, otherOwner, "different owners should produce different addresses")

	otherFactory, err := computeSmartWalletAddress(factory2, owner1, big.NewInt(0))
	require.NoError(t, err)
	assert.NotEqual(t, base, otherFactory, "different factories should produce different addresses")
}

func TestPackExecute(t *testing.T) {
	target := common.HexToAddress("0x69256ca54e6296e460dec7b29b7dcd97b81a3d55")

	calldata, err := PackExecute(target, big.NewInt(1000), []byte{0xde, 0xad})
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("execute(address,uint256,bytes)"))[:4]
	assert.Equal(t, selector, calldata[:4])
}

func TestPackExecuteNilArgs(t *testing.T) {
	target := common.HexToAddress("0x69256ca54e6296e460dec7b29b7dcd97b81a3d55")

	// nil value and nil inner calldata must encode, not panic
	calldata, err := PackExecute(target, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, calldata)
}

func TestPackExecuteBatch(t *testing.T) {
	targets := []common.Address{
		common.HexToAddress("0x69256ca54e6296e460dec7b29b7dcd97b81a3d55"),
		common.HexToAddress("0xe0f7d11fd714674722d325cd86062a5f1882e13a"),
	}

	calldata, err := PackExecuteBatch(targets, [][]byte{{0x01}, nil})
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("executeBatch(address[],bytes[])"))[:4]
	assert.Equal(t, selector, calldata[:4])

	_, err = PackExecuteBatch(targets, [][]byte{{0x01}})
	assert.Error(t, err, "length mismatch must be rejected")
}

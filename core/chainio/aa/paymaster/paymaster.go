// Package paymaster wraps the VerifyingPaymaster contract: computing the hash
// the sponsoring signer must sign, and packing paymasterAndData.
// Reference: https://github.com/eth-optimism/paymaster-reference
package paymaster

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/SouravInsights/permissionless-go/pkg/erc4337/userop"
)

const verifyingPaymasterABIJSON = `[
	{"inputs":[{"components":[{"name":"sender","type":"address"},{"name":"nonce","type":"uint256"},{"name":"initCode","type":"bytes"},{"name":"callData","type":"bytes"},{"name":"callGasLimit","type":"uint256"},{"name":"verificationGasLimit","type":"uint256"},{"name":"preVerificationGas","type":"uint256"},{"name":"maxFeePerGas","type":"uint256"},{"name":"maxPriorityFeePerGas","type":"uint256"},{"name":"paymasterAndData","type":"bytes"},{"name":"signature","type":"bytes"}],"name":"userOp","type":"tuple"},{"name":"validUntil","type":"uint48"},{"name":"validAfter","type":"uint48"}],"name":"getHash","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"}
]`

var paymasterABI abi.ABI

func init() {
	var err error
	paymasterABI, err = abi.JSON(strings.NewReader(verifyingPaymasterABIJSON))
	if err != nil {
		panic(fmt.Errorf("invalid paymaster ABI: %w", err))
	}
}

// contractOperation is the tuple shape getHash expects.
type contractOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// VerifyingPaymaster is a read-only handle on a deployed VerifyingPaymaster.
type VerifyingPaymaster struct {
	Address common.Address
	conn    *ethclient.Client
}

func NewVerifyingPaymaster(conn *ethclient.Client, address common.Address) *VerifyingPaymaster {
	return &VerifyingPaymaster{Address: address, conn: conn}
}

// placeholder values for the fields the contract's getHash skips over. Their
// content is ignored but their length is part of the calldata layout the
// contract's assembly slice walks, so they stay fixed.
var (
	placeholderPaymasterAndData = common.FromHex("0x" + strings.Repeat("ff", 149))
	placeholderSignature        = common.FromHex("0x1234567890abcdef")
)

// GetHash asks the paymaster contract for the digest covering the operation
// and validity window. The paymaster's own per-sender nonce is read from
// contract storage inside the call, which is why this cannot be computed
// offline.
func (vp *VerifyingPaymaster) GetHash(ctx context.Context, op *userop.UserOperation, validUntil, validAfter *big.Int) (common.Hash, error) {
	tuple := contractOperation{
		Sender:               op.Sender,
		Nonce:                op.Nonce,
		InitCode:             op.InitCode,
		CallData:             op.CallData,
		CallGasLimit:         op.CallGasLimit,
		VerificationGasLimit: op.VerificationGasLimit,
		PreVerificationGas:   op.PreVerificationGas,
		MaxFeePerGas:         op.MaxFeePerGas,
		MaxPriorityFeePerGas: op.MaxPriorityFeePerGas,
		PaymasterAndData:     placeholderPaymasterAndData,
		Signature:            placeholderSignature,
	}

	data, err := paymasterABI.Pack("getHash", tuple, validUntil, validAfter)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack getHash: %w", err)
	}

	to := vp.Address
	out, err := vp.conn.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("paymaster getHash call failed: %w", err)
	}

	results, err := paymasterABI.Unpack("getHash", out)
	if err != nil {
		return common.Hash{}, err
	}

	return results[0].([32]byte), nil
}

var uint48Args = abi.Arguments{
	{Type: abi.Type{T: abi.UintTy, Size: 48}},
	{Type: abi.Type{T: abi.UintTy, Size: 48}},
}

// PackPaymasterAndData assembles the sponsorship payload the EntryPoint hands
// to the paymaster: address (20) ++ abi.encode(validUntil, validAfter) (64) ++
// signature (65).
func (vp *VerifyingPaymaster) PackPaymasterAndData(signature []byte, validUntil, validAfter *big.Int) ([]byte, error) {
	if len(signature) != 65 {
		return nil, fmt.Errorf("paymaster signature must be 65 bytes, got %d", len(signature))
	}

	window, err := uint48Args.Pack(validUntil, validAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to encode validity window: %w", err)
	}

	data := make([]byte, 0, 20+len(window)+len(signature))
	data = append(data, vp.Address.Bytes()...)
	data = append(data, window...)
	data = append(data, signature...)
	return data, nil
}

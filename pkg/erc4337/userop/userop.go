// Package userop defines the EIP-4337 v0.6 UserOperation value object and its
// on-chain hash computation. The struct is built once by the caller and treated
// as immutable after submission.
package userop

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
)

// UserOperation mirrors the struct the EntryPoint v0.6 contract validates.
type UserOperation struct {
	Sender               common.Address `json:"sender"               validate:"required"`
	Nonce                *big.Int       `json:"nonce"                validate:"required"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"             validate:"required"`
	CallGasLimit         *big.Int       `json:"callGasLimit"         validate:"required"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit" validate:"required"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"   validate:"required"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"         validate:"required"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas" validate:"required"`
	PaymasterAndData     []byte         `json:"paymasterAndData"`
	Signature            []byte         `json:"signature"`
}

var validate = validator.New()

// Validate checks that every field required by the bundler wire format is set.
// Gas limits may be zero (the bundler fills them during estimation) but must
// not be nil.
func (op *UserOperation) Validate() error {
	return validate.Struct(op)
}

// wireOperation is the JSON form bundler RPCs expect: quantities as hex
// strings, byte fields 0x-prefixed.
type wireOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func toWire(op *UserOperation) wireOperation {
	return wireOperation{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(op.Nonce),
		InitCode:             op.InitCode,
		CallData:             op.CallData,
		CallGasLimit:         (*hexutil.Big)(op.CallGasLimit),
		VerificationGasLimit: (*hexutil.Big)(op.VerificationGasLimit),
		PreVerificationGas:   (*hexutil.Big)(op.PreVerificationGas),
		MaxFeePerGas:         (*hexutil.Big)(op.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(op.MaxPriorityFeePerGas),
		PaymasterAndData:     op.PaymasterAndData,
		Signature:            op.Signature,
	}
}

// MarshalJSON emits the bundler wire format.
func (op UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(&op))
}

// UnmarshalJSON accepts the bundler wire format.
func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op.Sender = w.Sender
	op.Nonce = (*big.Int)(w.Nonce)
	op.InitCode = w.InitCode
	op.CallData = w.CallData
	op.CallGasLimit = (*big.Int)(w.CallGasLimit)
	op.VerificationGasLimit = (*big.Int)(w.VerificationGasLimit)
	op.PreVerificationGas = (*big.Int)(w.PreVerificationGas)
	op.MaxFeePerGas = (*big.Int)(w.MaxFeePerGas)
	op.MaxPriorityFeePerGas = (*big.Int)(w.MaxPriorityFeePerGas)
	op.PaymasterAndData = w.PaymasterAndData
	op.Signature = w.Signature
	return nil
}

var (
	addressTy, _ = abi.NewType("address", "", nil)
	uint256Ty, _ = abi.NewType("uint256", "", nil)
	bytes32Ty, _ = abi.NewType("bytes32", "", nil)

	// abi.encode fields of the op, with byte fields hashed, per EntryPoint
	// v0.6 UserOperationLib.hash()
	packArgs = abi.Arguments{
		{Name: "sender", Type: addressTy},
		{Name: "nonce", Type: uint256Ty},
		{Name: "hashInitCode", Type: bytes32Ty},
		{Name: "hashCallData", Type: bytes32Ty},
		{Name: "callGasLimit", Type: uint256Ty},
		{Name: "verificationGasLimit", Type: uint256Ty},
		{Name: "preVerificationGas", Type: uint256Ty},
		{Name: "maxFeePerGas", Type: uint256Ty},
		{Name: "maxPriorityFeePerGas", Type: uint256Ty},
		{Name: "hashPaymasterAndData", Type: bytes32Ty},
	}

	hashArgs = abi.Arguments{
		{Name: "opHash", Type: bytes32Ty},
		{Name: "entryPoint", Type: addressTy},
		{Name: "chainId", Type: uint256Ty},
	}
)

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Pack abi-encodes the operation the way UserOperationLib.pack does, with the
// signature omitted and byte fields pre-hashed.
func (op *UserOperation) Pack() ([]byte, error) {
	return packArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		orZero(op.CallGasLimit),
		orZero(op.VerificationGasLimit),
		orZero(op.PreVerificationGas),
		orZero(op.MaxFeePerGas),
		orZero(op.MaxPriorityFeePerGas),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
}

// GetUserOpHash returns the hash the smart account signs:
// keccak256(abi.encode(keccak256(pack(op)), entrypoint, chainID)).
func (op *UserOperation) GetUserOpHash(entrypoint common.Address, chainID *big.Int) common.Hash {
	packed, err := op.Pack()
	if err != nil {
		// The pack arguments are static types; encoding only fails on a nil
		// receiver, which is a programming error.
		panic(err)
	}

	encoded, err := hashArgs.Pack(crypto.Keccak256Hash(packed), entrypoint, orZero(chainID))
	if err != nil {
		panic(err)
	}

	return crypto.Keccak256Hash(encoded)
}

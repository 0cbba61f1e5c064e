package bundler

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// GasEstimation is the result of eth_estimateUserOperationGas.
type GasEstimation struct {
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
}

// gasEstimationWire is the hex-quantity form bundlers return.
type gasEstimationWire struct {
	PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit         *hexutil.Big `json:"callGasLimit"`
}

func (w *gasEstimationWire) toEstimation() *GasEstimation {
	return &GasEstimation{
		PreVerificationGas:   (*big.Int)(w.PreVerificationGas),
		VerificationGasLimit: (*big.Int)(w.VerificationGasLimit),
		CallGasLimit:         (*big.Int)(w.CallGasLimit),
	}
}

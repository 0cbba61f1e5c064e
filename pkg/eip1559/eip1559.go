// Package eip1559 derives maxFeePerGas and maxPriorityFeePerGas suggestions
// for user operations from live chain data.
package eip1559

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// FeePolicy tunes how aggressively fees are padded above the node's
// suggestions. The zero value is unusable; start from DefaultFeePolicy.
type FeePolicy struct {
	// TipBufferPercent is added on top of the suggested tip.
	TipBufferPercent int64
	// MinTipWei floors the priority fee so bundlers keep the op profitable.
	MinTipWei *big.Int
	// BaseFeeMultiplier is the headroom factor applied to the pending base
	// fee, absorbing increases between estimation and inclusion.
	BaseFeeMultiplier int64
	// MinMaxFeeWei floors maxFeePerGas for high-basefee chains.
	MinMaxFeeWei *big.Int
}

func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		TipBufferPercent:  13,
		MinTipWei:         big.NewInt(2_000_000_000),
		BaseFeeMultiplier: 2,
		MinMaxFeeWei:      big.NewInt(20_000_000_000),
	}
}

// SuggestFee returns (maxFeePerGas, maxPriorityFeePerGas) using the default
// policy.
func SuggestFee(ctx context.Context, client *ethclient.Client) (*big.Int, *big.Int, error) {
	return DefaultFeePolicy().SuggestFee(ctx, client)
}

func (p FeePolicy) SuggestFee(ctx context.Context, client *ethclient.Client) (*big.Int, *big.Int, error) {
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	buffer := new(big.Int).Mul(new(big.Int).Div(tipCap, big.NewInt(100)), big.NewInt(p.TipBufferPercent))
	maxPriorityFeePerGas := new(big.Int).Add(tipCap, buffer)
	if p.MinTipWei != nil && maxPriorityFeePerGas.Cmp(p.MinTipWei) < 0 {
		maxPriorityFeePerGas = new(big.Int).Set(p.MinTipWei)
	}

	// Pre-EIP-1559 chains report no base fee; fall back to the tip alone.
	if header.BaseFee == nil {
		return new(big.Int).Set(maxPriorityFeePerGas), maxPriorityFeePerGas, nil
	}

	// maxFeePerGas must cover baseFee + tip; the multiplier keeps the op
	// includable when the base fee climbs between blocks.
	maxFeePerGas := new(big.Int).Add(
		new(big.Int).Mul(header.BaseFee, big.NewInt(p.BaseFeeMultiplier)),
		maxPriorityFeePerGas,
	)
	if p.MinMaxFeeWei != nil && maxFeePerGas.Cmp(p.MinMaxFeeWei) < 0 {
		maxFeePerGas = new(big.Int).Set(p.MinMaxFeeWei)
	}

	return maxFeePerGas, maxPriorityFeePerGas, nil
}

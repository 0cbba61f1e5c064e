package bundler

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceManager tracks the next nonce per sender across submitted-but-unmined
// UserOperations, so sequential operations don't collide in the bundler
// mempool. The rule is max(on-chain, cached): the chain wins when it advanced
// past the cache (ops mined or dropped), the cache wins while ops are pending.
type NonceManager struct {
	mu      sync.RWMutex
	pending map[common.Address]*big.Int
}

func NewNonceManager() *NonceManager {
	return &NonceManager{pending: make(map[common.Address]*big.Int)}
}

// Next returns the nonce to use for sender, given its current on-chain nonce.
func (nm *NonceManager) Next(sender common.Address, onChain *big.Int) *big.Int {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	cached, ok := nm.pending[sender]
	if !ok || onChain.Cmp(cached) > 0 {
		return new(big.Int).Set(onChain)
	}
	return new(big.Int).Set(cached)
}

// Advance records that a UserOperation with the given nonce was accepted by
// the bundler, so the next operation can use nonce+1 before this one mines.
func (nm *NonceManager) Advance(sender common.Address, used *big.Int) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nm.pending[sender] = new(big.Int).Add(used, big.NewInt(1))
}

// Reset drops the cached nonce for sender, forcing the next Next call to
// trust the chain. Used after an invalid-nonce rejection.
func (nm *NonceManager) Reset(sender common.Address) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	delete(nm.pending, sender)
}

// Cached returns the pending nonce for sender, if any.
func (nm *NonceManager) Cached(sender common.Address) (*big.Int, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	nonce, ok := nm.pending[sender]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(nonce), true
}

package aa

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// SenderResolver derives counterfactual wallet addresses and caches them.
// The owner+factory+salt -> address mapping is immutable on-chain, so entries
// never need invalidation; the cache only bounds memory.
type SenderResolver struct {
	conn  *ethclient.Client
	cache *bigcache.BigCache
}

func NewSenderResolver(conn *ethclient.Client) (*SenderResolver, error) {
	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(12*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to create sender cache: %w", err)
	}

	return &SenderResolver{conn: conn, cache: cache}, nil
}

func (r *SenderResolver) Close() error {
	return r.cache.Close()
}

// Resolve returns the smart wallet address for owner under the configured
// factory, consulting the factory's getAddress view on a cache miss.
func (r *SenderResolver) Resolve(owner common.Address, salt *big.Int) (common.Address, error) {
	if salt == nil {
		salt = defaultSalt
	}

	key := fmt.Sprintf("%s:%s:%s", factoryAddress.Hex(), owner.Hex(), salt.String())
	if cached, err := r.cache.Get(key); err == nil {
		return common.BytesToAddress(cached), nil
	}

	sender, err := GetSenderAddress(r.conn, owner, salt)
	if err != nil {
		return common.Address{}, err
	}

	// cache set failures only cost a future RPC round trip
	_ = r.cache.Set(key, sender.Bytes())

	return *sender, nil
}

// IsDeployed reports whether the wallet at sender has code.
func (r *SenderResolver) IsDeployed(ctx context.Context, sender common.Address) (bool, error) {
	code, err := r.conn.CodeAt(ctx, sender, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

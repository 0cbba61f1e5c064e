package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

const eip191Prefix = "\x19Ethereum Signed Message:\n"

// ParsePrivateKey accepts a hex-encoded secp256k1 key with or without the 0x
// prefix.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
}

// AddressFromPrivateKey returns the EOA address controlling the key.
func AddressFromPrivateKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// FromPrivateKeyHex builds transact opts for plain contract transactions,
// such as EntryPoint deposits.
func FromPrivateKeyHex(privateKeyHex string, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	return bind.NewKeyedTransactorWithChainID(key, chainID)
}

// SignMessage produces an EIP-191 personal_sign signature over data. The
// recovery id is shifted to the 27/28 form on-chain validators expect.
func SignMessage(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	prefixed := append([]byte(eip191Prefix+fmt.Sprint(len(data))), data...)
	digest := crypto.Keccak256Hash(prefixed)

	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27

	return sig, nil
}

func SignMessageAsHex(key *ecdsa.PrivateKey, data []byte) (string, error) {
	sig, err := SignMessage(key, data)
	if err != nil {
		return "", err
	}

	return common.Bytes2Hex(sig), nil
}

// Byte32Digest is the keccak256 of data as a fixed array, for callers packing
// hashes into ABI word slots.
func Byte32Digest(data []byte) ([32]byte, error) {
	var out [32]byte
	hasher := sha3.NewLegacyKeccak256()
	if _, err := hasher.Write(data); err != nil {
		return out, err
	}
	copy(out[:], hasher.Sum(nil))

	return out, nil
}

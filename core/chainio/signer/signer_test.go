package signer

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignMessageRecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	msg := []byte("hello userop")
	sig, err := SignMessage(key, msg)
	require.NoError(t, err)
	require.Equal(t, 65, len(sig))
	assert.True(t, sig[64] == 27 || sig[64] == 28)

	// undo the 27 shift and recover
	recoverable := make([]byte, 65)
	copy(recoverable, sig)
	recoverable[64] -= 27

	prefixed := append([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))), msg...)
	digest := crypto.Keccak256Hash(prefixed)

	pub, err := crypto.SigToPub(digest.Bytes(), recoverable)
	require.NoError(t, err)
	assert.Equal(t, AddressFromPrivateKey(key), crypto.PubkeyToAddress(*pub))
}

func TestParsePrivateKeyAcceptsPrefix(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := fmt.Sprintf("%x", crypto.FromECDSA(key))

	parsed, err := ParsePrivateKey(hexKey)
	require.NoError(t, err)
	assert.Equal(t, AddressFromPrivateKey(key), AddressFromPrivateKey(parsed))

	parsed2, err := ParsePrivateKey("0x" + hexKey)
	require.NoError(t, err)
	assert.Equal(t, AddressFromPrivateKey(key), AddressFromPrivateKey(parsed2))
}

func TestByte32DigestMatchesKeccak(t *testing.T) {
	data := []byte("digest me")
	got, err := Byte32Digest(data)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(data).Bytes(), got[:])
}

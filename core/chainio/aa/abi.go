package aa

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Hand-trimmed ABI fragments for the handful of contract methods the client
// needs. Keeping them inline avoids dragging generated bindings around for
// contracts we only ever read from.

const entryPointABIJSON = `[
	{"inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"name":"getNonce","outputs":[{"name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"getDepositInfo","outputs":[{"components":[{"name":"deposit","type":"uint112"},{"name":"staked","type":"bool"},{"name":"stake","type":"uint112"},{"name":"unstakeDelaySec","type":"uint32"},{"name":"withdrawTime","type":"uint48"}],"name":"info","type":"tuple"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"initCode","type":"bytes"}],"name":"getSenderAddress","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const factoryABIJSON = `[
	{"inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"name":"createAccount","outputs":[{"name":"ret","type":"address"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"name":"getAddress","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const simpleAccountABIJSON = `[
	{"inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"name":"execute","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"dest","type":"address[]"},{"name":"func","type":"bytes[]"}],"name":"executeBatch","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	entryPointABI    abi.ABI
	factoryABI       abi.ABI
	simpleAccountABI abi.ABI
)

func init() {
	entryPointABI = mustParseABI("entrypoint", entryPointABIJSON)
	factoryABI = mustParseABI("factory", factoryABIJSON)
	simpleAccountABI = mustParseABI("simpleaccount", simpleAccountABIJSON)
}

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Errorf("invalid %s ABI: %w", name, err))
	}
	return parsed
}

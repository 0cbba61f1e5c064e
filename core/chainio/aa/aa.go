// Package aa wraps the on-chain pieces of ERC-4337 account abstraction:
// init-code construction, counterfactual wallet address derivation, EntryPoint
// nonce and deposit reads, and SimpleAccount calldata packing.
package aa

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var defaultSalt = big.NewInt(0)

// GetInitCode returns the initCode deploying a smart wallet for owner through
// the configured factory: factory address (20 bytes) ++ createAccount calldata.
func GetInitCode(ownerAddress string, salt *big.Int) (string, error) {
	return GetInitCodeForFactory(ownerAddress, factoryAddress, salt)
}

// GetInitCodeForFactory is GetInitCode with an explicit factory address.
func GetInitCodeForFactory(ownerAddress string, factory common.Address, salt *big.Int) (string, error) {
	if salt == nil {
		salt = defaultSalt
	}

	calldata, err := factoryABI.Pack("createAccount", common.HexToAddress(ownerAddress), salt)
	if err != nil {
		return "", fmt.Errorf("failed to pack createAccount: %w", err)
	}

	data := make([]byte, 0, len(factory)+len(calldata))
	data = append(data, factory.Bytes()...)
	data = append(data, calldata...)

	return hexutil.Encode(data), nil
}

// GetSenderAddress derives the counterfactual smart wallet address for owner
// by calling the factory's getAddress view.
func GetSenderAddress(conn *ethclient.Client, ownerAddress common.Address, salt *big.Int) (*common.Address, error) {
	if salt == nil {
		salt = defaultSalt
	}

	data, err := factoryABI.Pack("getAddress", ownerAddress, salt)
	if err != nil {
		return nil, err
	}

	out, err := callContract(conn, factoryAddress, data)
	if err != nil {
		return nil, fmt.Errorf("factory getAddress call failed: %w", err)
	}

	results, err := factoryABI.Unpack("getAddress", out)
	if err != nil {
		return nil, err
	}

	sender := results[0].(common.Address)
	return &sender, nil
}

// computeSmartWalletAddress derives the wallet address offline with the
// CREATE2 formula keccak256(0xff ++ factory ++ salt ++ keccak256(initCode))[12:].
func computeSmartWalletAddress(factory, owner common.Address, salt *big.Int) (common.Address, error) {
	initCodeHex, err := GetInitCodeForFactory(owner.Hex(), factory, salt)
	if err != nil {
		return common.Address{}, err
	}

	initCode, err := hexutil.Decode(initCodeHex)
	if err != nil {
		return common.Address{}, err
	}

	saltBytes := make([]byte, 32)
	salt.FillBytes(saltBytes)

	var b []byte
	b = append(b, 0xff)
	b = append(b, factory.Bytes()...)
	b = append(b, saltBytes...)
	b = append(b, crypto.Keccak256(initCode)...)

	return common.BytesToAddress(crypto.Keccak256(b)[12:]), nil
}

// GetNonce reads the sender's current nonce from the EntryPoint. key selects
// the 2D nonce lane; almost everything uses key 0.
func GetNonce(conn *ethclient.Client, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = defaultSalt
	}

	data, err := entryPointABI.Pack("getNonce", sender, key)
	if err != nil {
		return nil, err
	}

	out, err := callContract(conn, EntrypointAddress, data)
	if err != nil {
		return nil, fmt.Errorf("entrypoint getNonce call failed: %w", err)
	}

	results, err := entryPointABI.Unpack("getNonce", out)
	if err != nil {
		return nil, err
	}

	return results[0].(*big.Int), nil
}

func MustNonce(conn *ethclient.Client, sender common.Address, key *big.Int) *big.Int {
	nonce, err := GetNonce(conn, sender, key)
	if err != nil {
		panic(err)
	}
	return nonce
}

// DepositInfo mirrors the EntryPoint's IStakeManager.DepositInfo.
type DepositInfo struct {
	Deposit         *big.Int
	Staked          bool
	Stake           *big.Int
	UnstakeDelaySec uint32
	WithdrawTime    *big.Int
}

// GetDepositInfo reads an account's deposit record from the EntryPoint.
// Paymasters pay for operations out of this deposit.
func GetDepositInfo(conn *ethclient.Client, account common.Address) (*DepositInfo, error) {
	data, err := entryPointABI.Pack("getDepositInfo", account)
	if err != nil {
		return nil, err
	}

	out, err := callContract(conn, EntrypointAddress, data)
	if err != nil {
		return nil, fmt.Errorf("entrypoint getDepositInfo call failed: %w", err)
	}

	results, err := entryPointABI.Unpack("getDepositInfo", out)
	if err != nil {
		return nil, err
	}

	info := abi.ConvertType(results[0], new(DepositInfo)).(*DepositInfo)
	return info, nil
}

// PackExecute builds SimpleAccount.execute(dest, value, func) calldata.
func PackExecute(targetAddress common.Address, ethValue *big.Int, calldata []byte) ([]byte, error) {
	if ethValue == nil {
		ethValue = new(big.Int)
	}
	if calldata == nil {
		calldata = make([]byte, 0)
	}
	return simpleAccountABI.Pack("execute", targetAddress, ethValue, calldata)
}

// PackExecuteBatch builds SimpleAccount.executeBatch(dest[], func[]) calldata.
func PackExecuteBatch(targets []common.Address, calldatas [][]byte) ([]byte, error) {
	if len(targets) != len(calldatas) {
		return nil, fmt.Errorf("executeBatch: %d targets but %d calldatas", len(targets), len(calldatas))
	}
	for i := range calldatas {
		if calldatas[i] == nil {
			calldatas[i] = make([]byte, 0)
		}
	}
	return simpleAccountABI.Pack("executeBatch", targets, calldatas)
}

func callContract(conn *ethclient.Client, to common.Address, data []byte) ([]byte, error) {
	return conn.CallContract(context.Background(), ethereum.CallMsg{To: &to, Data: data}, nil)
}

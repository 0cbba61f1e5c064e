package testutil

import (
	"log"
	"os"
	"strings"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/SouravInsights/permissionless-go/core/chainio/signer"
	"github.com/SouravInsights/permissionless-go/core/config"
	"github.com/SouravInsights/permissionless-go/storage"
)

const testPaymasterAddress = "0xB985af5f96EF2722DC99aEBA573520903B86505e"

func GetTestRPCURL() string {
	if v := os.Getenv("RPC_URL"); v != "" {
		return v
	}

	return "https://sepolia.drpc.org"
}

func GetTestWsRPCURL() string {
	if v := os.Getenv("WS_RPC_URL"); v != "" {
		return v
	}

	return strings.Replace(GetTestRPCURL(), "https://", "wss://", 1)
}

func GetTestBundlerURL() string {
	return os.Getenv("BUNDLER_RPC")
}

func GetRpcClient() *ethclient.Client {
	client, err := ethclient.Dial(GetTestRPCURL())
	if err != nil {
		log.Fatalf("Failed to connect to Ethereum client: %v", err)
	}

	return client
}

func GetLogger() sdklogging.Logger {
	logger, err := sdklogging.NewZapLogger("development")
	if err != nil {
		panic(err)
	}
	return logger
}

// TestMustDB opens a throwaway journal store under a temp dir. Callers clean
// up with db.Destroy(), which also removes the directory.
func TestMustDB() storage.Storage {
	dir, err := os.MkdirTemp("", "permissionless-test")
	if err != nil {
		panic(err)
	}

	db, err := storage.NewWithPath(dir)
	if err != nil {
		panic(err)
	}
	return db
}

// GetTestSmartWalletConfig builds a live-network config from the environment.
// Callers must skip when CONTROLLER_PRIVATE_KEY is unset.
func GetTestSmartWalletConfig() *config.Config {
	key, err := signer.ParsePrivateKey(os.Getenv("CONTROLLER_PRIVATE_KEY"))
	if err != nil {
		panic("Invalid controller private key from env. Ensure CONTROLLER_PRIVATE_KEY is the ECDSA key of the controller wallet")
	}

	return &config.Config{
		Logger:               GetLogger(),
		EthRpcUrl:            GetTestRPCURL(),
		EthWsUrl:             GetTestWsRPCURL(),
		BundlerURL:           GetTestBundlerURL(),
		FactoryAddress:       common.HexToAddress("0x29adA1b5217242DEaBB142BC3b1bCfFdd56008e7"),
		EntrypointAddress:    common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"),
		PaymasterAddress:     common.HexToAddress(testPaymasterAddress),
		ControllerPrivateKey: key,
		ControllerAddress:    signer.AddressFromPrivateKey(key),
	}
}

// Package config loads the smart wallet client configuration from a YAML file
// with environment variable overrides. Consumers receive the resolved Config
// by explicit injection; nothing here is a process-wide singleton.
package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/SouravInsights/permissionless-go/core/chainio/aa"
	"github.com/SouravInsights/permissionless-go/core/chainio/signer"
)

// ConfigRaw is the YAML shape on disk.
type ConfigRaw struct {
	Environment          sdklogging.LogLevel `yaml:"environment"`
	EthRpcUrl            string              `yaml:"eth_rpc_url" validate:"required"`
	EthWsUrl             string              `yaml:"eth_ws_url"`
	BundlerURL           string              `yaml:"bundler_url" validate:"required"`
	FactoryAddress       string              `yaml:"factory_address"`
	EntrypointAddress    string              `yaml:"entrypoint_address"`
	PaymasterAddress     string              `yaml:"paymaster_address"`
	ControllerPrivateKey string              `yaml:"controller_private_key" validate:"required"`
}

// Config is the resolved runtime configuration.
type Config struct {
	Logger sdklogging.Logger

	EthRpcUrl  string
	EthWsUrl   string
	BundlerURL string

	FactoryAddress    common.Address
	EntrypointAddress common.Address
	// PaymasterAddress is zero when no sponsorship is configured.
	PaymasterAddress common.Address

	ControllerPrivateKey *ecdsa.PrivateKey
	ControllerAddress    common.Address
}

var validate = validator.New()

// envOverrides maps environment variables onto ConfigRaw fields so deploys
// can keep secrets out of the YAML file.
var envOverrides = []struct {
	env   string
	apply func(*ConfigRaw, string)
}{
	{"ETH_RPC_URL", func(c *ConfigRaw, v string) { c.EthRpcUrl = v }},
	{"ETH_WS_URL", func(c *ConfigRaw, v string) { c.EthWsUrl = v }},
	{"BUNDLER_URL", func(c *ConfigRaw, v string) { c.BundlerURL = v }},
	{"FACTORY_ADDRESS", func(c *ConfigRaw, v string) { c.FactoryAddress = v }},
	{"ENTRYPOINT_ADDRESS", func(c *ConfigRaw, v string) { c.EntrypointAddress = v }},
	{"PAYMASTER_ADDRESS", func(c *ConfigRaw, v string) { c.PaymasterAddress = v }},
	{"CONTROLLER_PRIVATE_KEY", func(c *ConfigRaw, v string) { c.ControllerPrivateKey = v }},
}

// NewConfig reads configFilePath (optional when every required field arrives
// through the environment), applies env overrides, and resolves keys and
// addresses.
func NewConfig(configFilePath string) (*Config, error) {
	var raw ConfigRaw
	if configFilePath != "" {
		data, err := os.ReadFile(configFilePath)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", configFilePath, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", configFilePath, err)
		}
	}

	for _, o := range envOverrides {
		if v := os.Getenv(o.env); v != "" {
			o.apply(&raw, v)
		}
	}

	return resolve(raw)
}

func resolve(raw ConfigRaw) (*Config, error) {
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := sdklogging.NewZapLogger(raw.Environment)
	if err != nil {
		return nil, err
	}

	key, err := signer.ParsePrivateKey(raw.ControllerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("cannot parse controller private key: %w", err)
	}

	// unset contract addresses fall back to the package defaults
	factory := aa.FactoryAddress()
	if raw.FactoryAddress != "" {
		factory = common.HexToAddress(raw.FactoryAddress)
	}
	entrypoint := aa.EntrypointAddress
	if raw.EntrypointAddress != "" {
		entrypoint = common.HexToAddress(raw.EntrypointAddress)
	}

	cfg := &Config{
		Logger:               logger,
		EthRpcUrl:            raw.EthRpcUrl,
		EthWsUrl:             raw.EthWsUrl,
		BundlerURL:           raw.BundlerURL,
		FactoryAddress:       factory,
		EntrypointAddress:    entrypoint,
		PaymasterAddress:     common.HexToAddress(raw.PaymasterAddress),
		ControllerPrivateKey: key,
		ControllerAddress:    signer.AddressFromPrivateKey(key),
	}

	return cfg, nil
}

// HasPaymaster reports whether sponsorship is configured.
func (c *Config) HasPaymaster() bool {
	return c.PaymasterAddress != (common.Address{})
}

package main

import (
	"fmt"
	"math/big"
	"os"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/blndgs/userop"
)

// Config is the CLI configuration file.
type Config struct {
	Environment       sdklogging.LogLevel `yaml:"environment"`
	BundlerURL        string              `yaml:"bundler_url"`
	PaymasterURL      string              `yaml:"paymaster_url"`
	APIKey            string              `yaml:"api_key"`
	ChainID           uint64              `yaml:"chain_id"`
	EntryPointVersion string              `yaml:"entry_point_version"`
	EntryPoint        string              `yaml:"entry_point"`
	// Multiplier of verificationGasLimit for v0.6 operations with a paymaster.
	PaymasterVerificationMultiplier uint64 `yaml:"paymaster_verification_multiplier"`
	RequestTimeout                  string `yaml:"request_timeout"`
}

func defaultConfig() *Config {
	return &Config{
		Environment:                     sdklogging.Production,
		ChainID:                         1,
		EntryPointVersion:               string(userop.V06),
		PaymasterVerificationMultiplier: userop.DefaultPaymasterVerificationMultiplier,
		RequestTimeout:                  "30s",
	}
}

// LoadConfig reads the yaml file at path over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Version(); err != nil {
		return err
	}
	if _, err := c.EntryPointAddress(); err != nil {
		return err
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.PaymasterVerificationMultiplier == 0 {
		return fmt.Errorf("paymaster_verification_multiplier must be at least 1")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("chain_id must be set")
	}
	return nil
}

// Version returns the configured entry point version.
func (c *Config) Version() (userop.Version, error) {
	return userop.ParseVersion(c.EntryPointVersion)
}

// EntryPointAddress returns the configured entry point, or the canonical one
// of the configured version.
func (c *Config) EntryPointAddress() (common.Address, error) {
	if c.EntryPoint != "" {
		if !common.IsHexAddress(c.EntryPoint) {
			return common.Address{}, fmt.Errorf("entry_point %q is not an address", c.EntryPoint)
		}
		return common.HexToAddress(c.EntryPoint), nil
	}
	v, err := c.Version()
	if err != nil {
		return common.Address{}, err
	}
	return v.EntryPoint()
}

// ChainIDBig returns the chain id as a big integer.
func (c *Config) ChainIDBig() *big.Int {
	return new(big.Int).SetUint64(c.ChainID)
}

// Timeout returns the parsed request timeout.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("request_timeout: %w", err)
	}
	return d, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/blndgs/userop"
)

var (
	configPath         string
	versionOverride    string
	chainIDOverride    uint64
	entryPointOverride string

	rootCmd = &cobra.Command{
		Use:   "userop",
		Short: "ERC-4337 UserOperation toolkit",
		Long: `Hash, encode and gas-account ERC-4337 UserOperations for entry point v0.6 and v0.7.

Operations are read from a JSON file in the bundler's RPC format, such as
"userop hash op.json" or "userop prefund --entry-point-version v0.7 op.json".
`,
		SilenceUsage: true,
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&versionOverride, "entry-point-version", "", "Entry point version, v0.6 or v0.7")
	rootCmd.PersistentFlags().Uint64Var(&chainIDOverride, "chain-id", 0, "Chain id used for hashing")
	rootCmd.PersistentFlags().StringVar(&entryPointOverride, "entry-point", "", "Entry point address")
}

// loadConfig reads the config file and applies the command line overrides.
func loadConfig() (*Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if versionOverride != "" {
		cfg.EntryPointVersion = versionOverride
	}
	if chainIDOverride != 0 {
		cfg.ChainID = chainIDOverride
	}
	if entryPointOverride != "" {
		cfg.EntryPoint = entryPointOverride
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readOperation decodes the operation JSON at path for the configured version.
func readOperation(cfg *Config, path string) (userop.UserOperation, error) {
	v, err := cfg.Version()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read operation: %w", err)
	}
	op, err := userop.DecodeUserOperation(data, v)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s operation: %w", v, err)
	}
	return op, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

package main

import (
	"context"
	"fmt"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/blndgs/userop"
	"github.com/blndgs/userop/bundler"
)

var (
	encodePacked bool
	encodeWire   bool
	sponsorWith  string

	hashCmd = &cobra.Command{
		Use:   "hash <operation.json>",
		Short: "Compute the UserOperation hash",
		Long:  `Compute the hash the entry point signs over, bound to the configured entry point and chain id`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			op, err := readOperation(cfg, args[0])
			if err != nil {
				return err
			}
			entryPoint, err := cfg.EntryPointAddress()
			if err != nil {
				return err
			}
			hash, err := userop.GetUserOpHash(op, entryPoint, cfg.ChainIDBig())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash.Hex())
			return err
		},
	}

	prefundCmd = &cobra.Command{
		Use:   "prefund <operation.json>",
		Short: "Compute the required prefund",
		Long:  `Compute the balance the sender or its paymaster must be able to cover, in wei and ether`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			op, err := readOperation(cfg, args[0])
			if err != nil {
				return err
			}
			wei, err := userop.GetRequiredPrefund(op,
				userop.WithPaymasterVerificationMultiplier(cfg.PaymasterVerificationMultiplier))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s wei (%s ETH)\n", wei.String(), userop.FormatPrefund(wei))
			return err
		},
	}

	encodeCmd = &cobra.Command{
		Use:   "encode <operation.json>",
		Short: "Print the hashed encoding of an operation",
		Long: `Print the ABI encoding the entry point hashes. With --packed a v0.7 operation is
printed in its packed on-chain form; with --wire the operation is printed as RPC params.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			op, err := readOperation(cfg, args[0])
			if err != nil {
				return err
			}
			switch {
			case encodeWire:
				return printJSON(cmd, userop.ToWire(op))
			case encodePacked:
				v07, ok := op.(*userop.UserOperationV07)
				if !ok {
					return fmt.Errorf("--packed needs a v0.7 operation: %w", userop.ErrVersionMismatch)
				}
				packed, err := v07.Pack()
				if err != nil {
					return err
				}
				return printJSON(cmd, userop.ToWire(packed))
			default:
				enc, err := userop.EncodeForHash(op)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(enc))
				return err
			}
		},
	}

	estimateCmd = &cobra.Command{
		Use:   "estimate <operation.json>",
		Short: "Estimate gas limits with the configured bundler",
		Long: `Ask the configured bundler for gas limits, optionally sponsor the operation with the
configured paymaster, and print the completed operation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.BundlerURL == "" {
				return fmt.Errorf("bundler_url is not configured")
			}
			op, err := readOperation(cfg, args[0])
			if err != nil {
				return err
			}
			client, err := newBundlerClient(cfg, cfg.BundlerURL)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			est, err := client.EstimateUserOperationGas(ctx, op)
			if err != nil {
				return err
			}
			if err := est.Apply(op); err != nil {
				return err
			}

			if sponsorWith != "" {
				paymasterURL := cfg.PaymasterURL
				if paymasterURL == "" {
					paymasterURL = cfg.BundlerURL
				}
				pm, err := newBundlerClient(cfg, paymasterURL)
				if err != nil {
					return err
				}
				res, err := pm.SponsorUserOperation(ctx, op, sponsorWith)
				if err != nil {
					return err
				}
				if err := res.Apply(op); err != nil {
					return err
				}
			}
			return printJSON(cmd, op)
		},
	}
)

func newBundlerClient(cfg *Config, url string) (*bundler.Client, error) {
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	entryPoint, err := cfg.EntryPointAddress()
	if err != nil {
		return nil, err
	}
	v, err := cfg.Version()
	if err != nil {
		return nil, err
	}
	logger, err := sdklogging.NewZapLogger(cfg.Environment)
	if err != nil {
		return nil, err
	}

	opts := []bundler.HTTPOption{bundler.WithTimeout(timeout)}
	if cfg.APIKey != "" {
		opts = append(opts, bundler.WithHeader("X-Api-Key", cfg.APIKey))
	}
	return bundler.NewClient(
		bundler.NewHTTPTransport(url, opts...),
		v,
		bundler.WithEntryPoint(entryPoint),
		bundler.WithLogger(logger),
	)
}

func init() {
	encodeCmd.Flags().BoolVar(&encodePacked, "packed", false, "print the packed v0.7 form")
	encodeCmd.Flags().BoolVar(&encodeWire, "wire", false, "print the RPC params form")
	estimateCmd.Flags().StringVar(&sponsorWith, "sponsor", "", "sponsorship policy id to request from the paymaster")

	rootCmd.AddCommand(hashCmd, prefundCmd, encodeCmd, estimateCmd)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/SouravInsights/permissionless-go/core/chainio/aa"
	"github.com/SouravInsights/permissionless-go/core/config"
	"github.com/SouravInsights/permissionless-go/pkg/erc4337/bundler"
	"github.com/SouravInsights/permissionless-go/pkg/erc4337/preset"
)

var (
	estimateTarget  string
	estimateDataHex string

	estimateCmd = &cobra.Command{
		Use:   "estimate",
		Short: "Estimate gas for a user operation",
		Long: `Build an unsigned user operation for the given call and ask the
bundler to estimate its gas. Bundler rejections are reported with their
classified failure kind.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runEstimate(); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
		},
	}
)

func init() {
	estimateCmd.Flags().StringVar(&estimateTarget, "target", "", "Contract or recipient address to call")
	estimateCmd.Flags().StringVar(&estimateDataHex, "data", "0x", "Hex calldata for the target")
	estimateCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(estimateCmd)
}

func runEstimate() error {
	if !common.IsHexAddress(estimateTarget) {
		return fmt.Errorf("invalid target address: %s", estimateTarget)
	}

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return err
	}
	aa.SetFactoryAddress(cfg.FactoryAddress)
	aa.SetEntrypointAddress(cfg.EntrypointAddress)

	calldata, err := aa.PackExecute(common.HexToAddress(estimateTarget), nil, common.FromHex(estimateDataHex))
	if err != nil {
		return err
	}

	sender, err := preset.NewSender(cfg, nil)
	if err != nil {
		return err
	}
	defer sender.Close()

	ctx := context.Background()
	op, err := sender.BuildUserOp(ctx, cfg.ControllerAddress, calldata)
	if err != nil {
		return err
	}

	gas, err := sender.EstimateGas(ctx, op)
	if err != nil {
		var uerr *bundler.UserOperationError
		if errors.As(err, &uerr) {
			return fmt.Errorf("bundler rejected the operation (%s): %w", uerr.Kind, err)
		}
		return err
	}

	totalGas := decimal.NewFromBigInt(gas.CallGasLimit, 0).
		Add(decimal.NewFromBigInt(gas.VerificationGasLimit, 0)).
		Add(decimal.NewFromBigInt(gas.PreVerificationGas, 0))
	maxCostWei := decimal.NewFromBigInt(op.MaxFeePerGas, 0).Mul(totalGas)

	fmt.Printf("Sender:               %s\n", op.Sender.Hex())
	fmt.Printf("CallGasLimit:         %s\n", gas.CallGasLimit)
	fmt.Printf("VerificationGasLimit: %s\n", gas.VerificationGasLimit)
	fmt.Printf("PreVerificationGas:   %s\n", gas.PreVerificationGas)
	fmt.Printf("Max cost:             %s ETH\n", maxCostWei.Shift(-18))
	return nil
}

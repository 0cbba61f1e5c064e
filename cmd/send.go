package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/k0kubun/pp/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/SouravInsights/permissionless-go/core/chainio/aa"
	"github.com/SouravInsights/permissionless-go/core/config"
	"github.com/SouravInsights/permissionless-go/pkg/erc4337/preset"
	"github.com/SouravInsights/permissionless-go/storage"
)

var (
	sendTarget    string
	sendValueEth  string
	sendDataHex   string
	usePaymaster  bool
	journalDBPath string

	sendCmd = &cobra.Command{
		Use:   "send",
		Short: "Send a user operation",
		Long: `Build, sign, and submit a user operation executing a call from the
controller's smart wallet. The wallet is deployed automatically on first use.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runSend(); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
		},
	}
)

func init() {
	sendCmd.Flags().StringVar(&sendTarget, "target", "", "Contract or recipient address to call")
	sendCmd.Flags().StringVar(&sendValueEth, "value", "0", "ETH value to attach, in ether")
	sendCmd.Flags().StringVar(&sendDataHex, "data", "0x", "Hex calldata for the target")
	sendCmd.Flags().BoolVar(&usePaymaster, "paymaster", false, "Sponsor gas through the configured paymaster")
	sendCmd.Flags().StringVar(&journalDBPath, "journal-db", "./data/journal", "Path of the submission journal database")
	sendCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(sendCmd)
}

func runSend() error {
	if !common.IsHexAddress(sendTarget) {
		return fmt.Errorf("invalid target address: %s", sendTarget)
	}

	valueEth, err := decimal.NewFromString(sendValueEth)
	if err != nil {
		return fmt.Errorf("invalid --value: %w", err)
	}
	valueWei := valueEth.Shift(18).BigInt()

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return err
	}
	aa.SetFactoryAddress(cfg.FactoryAddress)
	aa.SetEntrypointAddress(cfg.EntrypointAddress)

	if usePaymaster && !cfg.HasPaymaster() {
		return fmt.Errorf("--paymaster requested but no paymaster_address configured")
	}

	calldata, err := aa.PackExecute(common.HexToAddress(sendTarget), valueWei, common.FromHex(sendDataHex))
	if err != nil {
		return err
	}

	db, err := storage.NewWithPath(journalDBPath)
	if err != nil {
		return fmt.Errorf("cannot open journal db: %w", err)
	}
	defer db.Close()

	sender, err := preset.NewSender(cfg, storage.NewJournal(db))
	if err != nil {
		return err
	}
	defer sender.Close()

	var paymasterReq *preset.VerifyingPaymasterRequest
	if usePaymaster {
		paymasterReq = preset.GetVerifyingPaymasterRequestForDuration(cfg.PaymasterAddress, 15*time.Minute)
	}

	op, receipt, err := sender.SendUserOp(context.Background(), cfg.ControllerAddress, calldata, paymasterReq)
	if err != nil {
		return err
	}

	if verbose {
		pp.Println(op)
	}

	if receipt == nil {
		fmt.Println("operation accepted, not yet mined. Check the journal for its outcome.")
		return nil
	}

	fmt.Printf("confirmed in tx %s (block %d, gas used %d)\n",
		receipt.TxHash.Hex(), receipt.BlockNumber.Uint64(), receipt.GasUsed)
	return nil
}

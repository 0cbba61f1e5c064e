package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/k0kubun/pp/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/SouravInsights/permissionless-go/core/chainio/aa"
	"github.com/SouravInsights/permissionless-go/core/config"
)

var walletCmd = &cobra.Command{
	Use:   "wallet <owner-address>",
	Short: "Resolve the smart wallet for an owner",
	Long: `Resolve the counterfactual smart wallet address for an owner EOA
and report its deployment status, nonce, and balances.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWallet(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(walletCmd)
}

func weiToEth(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -18)
}

func runWallet(ownerHex string) error {
	if !common.IsHexAddress(ownerHex) {
		return fmt.Errorf("invalid owner address: %s", ownerHex)
	}
	owner := common.HexToAddress(ownerHex)

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return err
	}
	aa.SetFactoryAddress(cfg.FactoryAddress)
	aa.SetEntrypointAddress(cfg.EntrypointAddress)

	client, err := ethclient.Dial(cfg.EthRpcUrl)
	if err != nil {
		return err
	}
	defer client.Close()

	resolver, err := aa.NewSenderResolver(client)
	if err != nil {
		return err
	}
	defer resolver.Close()

	sender, err := resolver.Resolve(owner, big.NewInt(0))
	if err != nil {
		return err
	}

	ctx := context.Background()
	deployed, err := resolver.IsDeployed(ctx, sender)
	if err != nil {
		return err
	}

	balance, err := client.BalanceAt(ctx, sender, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Owner:        %s\n", owner.Hex())
	fmt.Printf("Smart wallet: %s\n", sender.Hex())
	fmt.Printf("Deployed:     %v\n", deployed)
	fmt.Printf("Balance:      %s ETH\n", weiToEth(balance))

	if deployed {
		nonce, err := aa.GetNonce(client, sender, big.NewInt(0))
		if err != nil {
			return err
		}
		fmt.Printf("Nonce:        %s\n", nonce)
	}

	info, err := aa.GetDepositInfo(client, sender)
	if err == nil {
		fmt.Printf("EntryPoint deposit: %s ETH\n", weiToEth(info.Deposit))
		if verbose {
			pp.Println(info)
		}
	}

	return nil
}

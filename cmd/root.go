package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	configPath = "./config/permissionless.yaml"
	verbose    = false

	rootCmd = &cobra.Command{
		Use:   "permissionless",
		Short: "ERC-4337 smart wallet CLI",
		Long: `CLI to interact with ERC-4337 smart wallets through a bundler.

Resolve counterfactual wallet addresses, estimate gas, send user operations
with optional paymaster sponsorship, and inspect the submission journal.
`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Dump full structures for debugging")
}

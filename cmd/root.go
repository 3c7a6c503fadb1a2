package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bizledger-backend/config"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "bizledger",
	Short: "Invoice lifecycle and stock ledger backend",
	Long: `bizledger serves the multi-tenant invoicing API: invoice drafts,
line items, sending and cancellation, with every sale and return
booked against product and warehouse stock.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads the configuration and the logger shared by all subcommands.
func bootstrap() (config.Config, *logrus.Logger) {
	cfg := config.Load()
	return cfg, config.NewLogger(cfg)
}

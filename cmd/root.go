package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crm-extract",
	Short: "Motor policy PDF extraction for the CRM",
	Long:  "Reads uploaded insurance policy PDFs, extracts policy fields via a strict-schema LLM call hardened by regex assist and an evidence gate, and saves reviewed policies.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

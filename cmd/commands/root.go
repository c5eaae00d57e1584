package commands

// Root command for Cobra CLI
// Loads configuration and logging once for every subcommand

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wave-portal/internal/infra/config"
	logging "wave-portal/internal/infra/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cfg is filled by PersistentPreRunE before any subcommand runs
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "wave-portal",
	Short: "Wave Portal - send and read wave messages on Starknet",
	Long: `Wave Portal reads wave events from the Starknet wave contract, sends new waves
through a custodial signer or a local account, and tracks them until they confirm.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// Execute runs the CLI; Ctrl+C cancels the context every command works under
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(wavesCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(watchCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadConfig(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded

	if err := logging.Init(logging.Options{
		Dir:     cfg.Log.Dir,
		File:    "wave-portal.log",
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	}); err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	logging.LogDebug("Config loaded",
		zap.String("command", cmd.Name()),
		zap.String("rpc", cfg.Starknet.RPCURL),
		zap.String("contract", cfg.Starknet.ContractAddress),
		zap.String("strategy", cfg.Writer.Strategy))
	return nil
}

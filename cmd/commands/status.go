package commands

// Command to wait for an existing transaction to confirm

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Poll a transaction until it confirms",
	Long: `Check the receipt of a transaction every poller.interval seconds, up to poller.max_attempts
times. A transaction counts as confirmed once it SUCCEEDED and is accepted on L2 or L1.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	chain, err := newChainClient(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Waiting for %s\n", args[0])
	res, err := newPoller(cfg, chain, printProgress(cfg.Poller.MaxAttempts)).Wait(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(res.Describe())
	if res.Receipt != nil && res.Receipt.RevertReason != "" {
		fmt.Printf("Revert reason: %s\n", res.Receipt.RevertReason)
	}
	return nil
}

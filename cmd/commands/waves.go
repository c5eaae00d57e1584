package commands

// Command to print the latest waves and both totals once

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var wavesCmd = &cobra.Command{
	Use:   "waves",
	Short: "Print recent waves and totals",
	Long:  `Read every wave event from the contract and print them most recent first, with the event count and the contract counter.`,
	RunE:  runWaves,
}

func init() {
	wavesCmd.Flags().IntP("limit", "n", 20, "How many waves to print (0 for all)")
	wavesCmd.Flags().Bool("json", false, "Print the snapshot as JSON")
}

func runWaves(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	chain, err := newChainClient(cfg)
	if err != nil {
		return err
	}
	snap := newReader(cfg, chain).Refresh(cmd.Context())
	if snap.Stale {
		return fmt.Errorf("failed to read waves: %s", snap.LastError)
	}

	if limit > 0 && len(snap.Waves) > limit {
		snap.Waves = snap.Waves[:limit]
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Printf("Total waves: %d (contract: %s)\n", snap.EventTotal, snap.ContractTotal)
	if snap.ContractTotalErr != "" {
		fmt.Printf("  contract counter unavailable: %s\n", snap.ContractTotalErr)
	}
	if len(snap.Waves) == 0 {
		fmt.Println("No waves yet. Be the first!")
		return nil
	}
	fmt.Println()
	for _, w := range snap.Waves {
		fmt.Printf("#%-8d %s\n", w.BlockNumber, w.Message)
		if w.TxHash != "" {
			fmt.Printf("          %s\n", w.TxHash)
		}
	}
	return nil
}

package commands

// Command to send a wave from the terminal and wait for it to confirm

import (
	"errors"
	"fmt"
	"strings"

	"wave-portal/internal/features/writer"
	logging "wave-portal/internal/infra/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a wave",
	Long: `Send a wave message to the contract. The custodial strategy signs with the wallet of
identity.session_id and asks for the wallet PIN; the direct strategy signs with the local account.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().String("pin", "", "Wallet PIN (prompted without echo when empty)")
	sendCmd.Flags().Bool("no-wait", false, "Return after submission without polling for confirmation")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	message := strings.Join(args, " ")
	noWait, _ := cmd.Flags().GetBool("no-wait")

	custodial := cfg.Writer.Strategy != writer.StrategyDirect
	if err := checkInput(message, "", false); err != nil {
		return errors.New(writer.UserMessage(err))
	}
	req := writer.WaveRequest{Message: message}
	if custodial {
		pinFlag, _ := cmd.Flags().GetString("pin")
		pin, err := readPIN(pinFlag)
		if err != nil {
			return err
		}
		if err := checkInput(message, pin, true); err != nil {
			return errors.New(writer.UserMessage(err))
		}
		req.PIN = pin
	}

	chain, err := newChainClient(cfg)
	if err != nil {
		return err
	}
	w, err := newWriter(cfg, chain)
	if err != nil {
		return err
	}

	if custodial {
		user, err := custodialSession(ctx, cfg)
		if err != nil {
			return err
		}
		req.Wallet = user.wallet
		if err := writer.Validate(req); err != nil {
			return errors.New(writer.UserMessage(err))
		}
		if req.BearerToken, err = user.bearerToken(ctx); err != nil {
			return err
		}
	}

	handle, err := w.SendWave(ctx, req)
	if err != nil {
		logging.LogError("Failed to send wave", zap.Error(err))
		return errors.New(writer.UserMessage(err))
	}
	fmt.Printf("Wave sent: %s\n", handle.Hash)
	if cfg.Starknet.ExplorerTxURL != "" {
		fmt.Printf("Explorer: %s%s\n", cfg.Starknet.ExplorerTxURL, handle.Hash)
	}
	if noWait {
		return nil
	}

	res, err := newPoller(cfg, chain, printProgress(cfg.Poller.MaxAttempts)).Wait(ctx, handle.Hash)
	if err != nil {
		return err
	}
	fmt.Println(res.Describe())
	return nil
}

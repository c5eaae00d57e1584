package commands

// Command to move tokens out of the custodial wallet

import (
	"errors"
	"fmt"

	"wave-portal/internal/clients_api/chipi"
	"wave-portal/internal/features/writer"
	logging "wave-portal/internal/infra/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var transferCmd = &cobra.Command{
	Use:   "transfer <recipient> <amount>",
	Short: "Transfer tokens from the custodial wallet",
	Long: `Send an ERC-20 transfer through the custodial signer. The amount is decimal ("1.5") and is
scaled by transfer.decimals; the token is transfer.token_address (USDC by default).`,
	Args: cobra.ExactArgs(2),
	RunE: runTransfer,
}

func init() {
	transferCmd.Flags().String("pin", "", "Wallet PIN (prompted without echo when empty)")
	transferCmd.Flags().String("transfer.token_address", "", "ERC-20 token contract (default USDC)")
	transferCmd.Flags().Int("transfer.decimals", 6, "Token decimals")
	transferCmd.Flags().Bool("wait", true, "Poll for confirmation after submission")
}

func runTransfer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	recipient, amount := args[0], args[1]

	if cfg.Writer.Strategy == writer.StrategyDirect {
		return fmt.Errorf("transfer needs the custodial strategy")
	}
	if err := cfg.RequireSigner(); err != nil {
		return err
	}
	if _, err := chipi.ParseAmount(amount, cfg.Transfer.Decimals); err != nil {
		return fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	pinFlag, _ := cmd.Flags().GetString("pin")
	pin, err := readPIN(pinFlag)
	if err != nil {
		return err
	}
	if pin == "" {
		return errors.New("please provide PIN")
	}

	user, err := custodialSession(ctx, cfg)
	if err != nil {
		return err
	}
	if user.wallet == nil {
		return errors.New("wallet is not set up, finish onboarding first")
	}
	wallet := user.wallet
	token, err := user.bearerToken(ctx)
	if err != nil {
		return err
	}

	res, err := newSigner(cfg).Transfer(ctx, token, chipi.TransferParams{
		EncryptKey:   pin,
		Wallet:       chipi.WalletData{PublicKey: wallet.PublicKey, EncryptedPrivateKey: wallet.EncryptedPrivateKey},
		TokenAddress: cfg.Transfer.TokenAddress,
		Recipient:    recipient,
		Amount:       amount,
		Decimals:     cfg.Transfer.Decimals,
	})
	if err != nil {
		logging.LogError("Transfer failed", zap.String("recipient", recipient), zap.Error(err))
		var apiErr *chipi.APIError
		if errors.As(err, &apiErr) {
			return errors.New(apiErr.UserMessage())
		}
		return fmt.Errorf("failed to transfer: %w", err)
	}
	logging.LogSuccess("Transfer submitted",
		zap.String("txHash", res.TransactionHash),
		zap.String("recipient", recipient),
		zap.String("amount", amount))
	fmt.Printf("Transfer sent: %s\n", res.TransactionHash)

	if wait, _ := cmd.Flags().GetBool("wait"); !wait {
		return nil
	}
	chain, err := newChainClient(cfg)
	if err != nil {
		return err
	}
	pr, err := newPoller(cfg, chain, printProgress(cfg.Poller.MaxAttempts)).Wait(ctx, res.TransactionHash)
	if err != nil {
		return err
	}
	fmt.Println(pr.Describe())
	return nil
}

package commands

// Builders shared by the subcommands: RPC client, reader, writer, poller, identity

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"wave-portal/internal/clients_api/chipi"
	"wave-portal/internal/clients_api/clerk"
	"wave-portal/internal/clients_api/starknet"
	"wave-portal/internal/features/poller"
	"wave-portal/internal/features/waves"
	"wave-portal/internal/features/writer"
	"wave-portal/internal/infra/config"
	logging "wave-portal/internal/infra/log"
	"wave-portal/internal/infra/retry"

	"go.uber.org/zap"
	"golang.org/x/term"
)

func newChainClient(cfg *config.Config) (*starknet.Client, error) {
	client, err := starknet.NewClient(cfg.Starknet.RPCURL, cfg.Starknet.Timeout())
	if err != nil {
		return nil, fmt.Errorf("failed to create starknet client: %w", err)
	}
	return client, nil
}

func newReader(cfg *config.Config, chain waves.Chain) *waves.Reader {
	return waves.NewReader(chain, waves.Options{
		ContractAddress: cfg.Starknet.ContractAddress,
		EventKey:        cfg.Starknet.EventKey,
		FromBlock:       cfg.Starknet.FromBlock,
		ChunkSize:       cfg.Starknet.ChunkSize,
		MaxPages:        cfg.Starknet.MaxPages,
		Retry: retry.Options{
			MaxRetries: cfg.Starknet.MaxRetries,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   10 * time.Second,
			OnRetry: func(attempt int, err error, sleep time.Duration) {
				logging.LogWarn("Retrying RPC read",
					zap.Int("attempt", attempt),
					zap.Duration("sleep", sleep),
					zap.Error(err))
			},
		},
	})
}

func newPoller(cfg *config.Config, source poller.ReceiptSource, onCheck func(int, *starknet.Receipt, error)) *poller.Poller {
	return poller.New(source, poller.Options{
		MaxAttempts: cfg.Poller.MaxAttempts,
		Interval:    cfg.Poller.IntervalDuration(),
		RequireL1:   cfg.Poller.RequireL1,
		OnCheck:     onCheck,
	})
}

func newSigner(cfg *config.Config) *chipi.Client {
	return chipi.NewClient(chipi.Options{
		BaseURL:         cfg.Signer.BaseURL,
		CallPath:        cfg.Signer.CallPath,
		APIKey:          cfg.Signer.APIKey,
		Network:         cfg.Signer.Network,
		Timeout:         cfg.Signer.Timeout(),
		MaxResponseSize: cfg.App.MaxResponseSize,
	})
}

// newIdentity returns nil when the identity provider is not configured
func newIdentity(cfg *config.Config) *clerk.Client {
	if err := cfg.RequireIdentity(); err != nil {
		logging.LogWarn("Identity provider not configured", zap.Error(err))
		return nil
	}
	return clerk.NewClient(clerk.Options{
		BaseURL:     cfg.Identity.BaseURL,
		SecretKey:   cfg.Identity.SecretKey,
		JWTTemplate: cfg.Identity.JWTTemplate,
		Timeout:     cfg.Signer.Timeout(),
	})
}

// newWriter picks the configured strategy. A custodial writer without signer
// credentials still validates input and then reports the signer as unavailable.
func newWriter(cfg *config.Config, chain *starknet.Client) (writer.Writer, error) {
	switch cfg.Writer.Strategy {
	case writer.StrategyDirect:
		if err := cfg.RequireDirectAccount(); err != nil {
			return nil, err
		}
		acct, err := chain.NewAccount(cfg.Writer.AccountAddress, cfg.Writer.AccountPublicKey, cfg.Writer.AccountPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load direct account: %w", err)
		}
		logging.LogInfo("Using direct write strategy", zap.String("account", acct.Address()))
		return writer.NewDirect(acct, cfg.Starknet.ContractAddress), nil
	default:
		if err := cfg.RequireSigner(); err != nil {
			logging.LogWarn("Signer not configured, sending is disabled", zap.Error(err))
			return writer.NewCustodial(nil, cfg.Starknet.ContractAddress), nil
		}
		logging.LogInfo("Using custodial write strategy", zap.String("signer", cfg.Signer.BaseURL))
		return writer.NewCustodial(newSigner(cfg), cfg.Starknet.ContractAddress), nil
	}
}

// custodialUser - the configured session, resolved to its wallet
type custodialUser struct {
	identity  *clerk.Client
	sessionID string
	wallet    *writer.WalletReference
}

// custodialSession looks up identity.session_id and the wallet of its user
func custodialSession(ctx context.Context, cfg *config.Config) (*custodialUser, error) {
	identity := newIdentity(cfg)
	if identity == nil {
		return nil, errors.New("custodial commands need identity.secret_key (env: CLERK_SECRET_KEY)")
	}
	if cfg.Identity.SessionID == "" {
		return nil, errors.New("custodial commands need identity.session_id (env: CLERK_SESSION_ID)")
	}

	session, err := identity.GetSession(ctx, cfg.Identity.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session.Status != "active" {
		return nil, clerk.ErrSessionInactive
	}
	user, err := identity.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	cu := &custodialUser{identity: identity, sessionID: session.ID}
	if wm, ok := user.Wallet(); ok {
		cu.wallet = &writer.WalletReference{PublicKey: wm.PublicKey, EncryptedPrivateKey: wm.EncryptedPrivateKey}
	}
	return cu, nil
}

// bearerToken mints the signer token; call it once the request is known to be valid
func (u *custodialUser) bearerToken(ctx context.Context) (string, error) {
	token, err := u.identity.BearerToken(ctx, u.sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to get bearer token: %w", err)
	}
	return token, nil
}

// checkInput rejects an empty message or PIN before anything goes over the network
func checkInput(message, pin string, needPIN bool) error {
	var missing []string
	if strings.TrimSpace(message) == "" {
		missing = append(missing, "message")
	}
	if needPIN && pin == "" {
		missing = append(missing, "PIN")
	}
	if len(missing) > 0 {
		return &writer.ValidationError{Missing: missing}
	}
	return nil
}

// readPIN takes the PIN from the flag, or prompts without echo on a terminal
func readPIN(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read PIN: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, "Wallet PIN: ")
	pin, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read PIN: %w", err)
	}
	return strings.TrimSpace(string(pin)), nil
}

// printProgress is the poller OnCheck hook of the terminal commands
func printProgress(maxAttempts int) func(int, *starknet.Receipt, error) {
	return func(attempt int, r *starknet.Receipt, err error) {
		switch {
		case err != nil:
			fmt.Printf("  check %d/%d: receipt not available (%v)\n", attempt, maxAttempts, err)
		case r == nil:
			fmt.Printf("  check %d/%d: pending\n", attempt, maxAttempts)
		default:
			fmt.Printf("  check %d/%d: %s / %s\n", attempt, maxAttempts, r.ExecutionStatus, r.FinalityStatus)
		}
	}
}

package commands

// Command to run the portal: refresh loops, HTTP page + API, optional Telegram notifier
// Implements graceful shutdown for proper termination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wave-portal/bots_monitor"
	"wave-portal/internal/features/portal"
	"wave-portal/internal/features/writer"
	storage "wave-portal/internal/infra/fs"
	logging "wave-portal/internal/infra/log"
	"wave-portal/internal/web"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wave portal web server",
	Long: `Serve the wave page and JSON API, keep the wave list fresh in the background and
track sent waves until they confirm. With telegram.bot_token set, new waves and confirmation
cards are also posted to telegram.chat_id.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("server.addr", ":8080", "HTTP listen address (env: HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	chain, err := newChainClient(cfg)
	if err != nil {
		return err
	}
	reader := newReader(cfg, chain)
	w, err := newWriter(cfg, chain)
	if err != nil {
		return err
	}
	p := portal.New(reader, w, newPoller(cfg, chain, nil), portal.Options{
		GeneralInterval:   cfg.Refresh.GeneralDuration(),
		PendingInterval:   cfg.Refresh.PendingDuration(),
		CelebrationWindow: cfg.Refresh.CelebrationDuration(),
	})

	opts := web.Options{
		Addr:          cfg.Server.Addr,
		SignInURL:     cfg.Identity.SignInURL,
		OnboardingURL: cfg.Identity.OnboardingURL,
		ExplorerTxURL: cfg.Starknet.ExplorerTxURL,
	}
	if cfg.Writer.Strategy != writer.StrategyDirect {
		identity := newIdentity(cfg)
		if identity == nil {
			return fmt.Errorf("custodial strategy needs the identity provider: identity.secret_key is required")
		}
		opts.Auth = identity
	}
	server := web.NewServer(p, opts)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	if err := cfg.RequireTelegram(); err == nil {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logging.LogError("Failed to create Telegram bot, continuing without it", zap.Error(err))
		} else {
			logging.LogInfo("Telegram bot authorized", zap.String("username", bot.Self.UserName))
			monitor := bots_monitor.NewWaveMonitor(bot, cfg.Telegram.ChatID, p,
				storage.NewStore(cfg.App.DataDir), cfg.Starknet.ExplorerTxURL, cfg.Telegram.CheckIntervalDuration())
			p.OnConfirmed(monitor.NotifyConfirmed)

			wg.Add(2)
			go func() {
				defer wg.Done()
				monitor.Run(ctx)
			}()
			go func() {
				defer wg.Done()
				bots_monitor.RunCommandHandler(ctx, bot, cfg.Telegram.ChatID, p)
			}()
		}
	} else {
		logging.LogDebug("Telegram not configured", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		serverErr <- server.Run(ctx)
	}()

	logging.LogSuccess("Wave portal is running",
		zap.String("addr", cfg.Server.Addr),
		zap.String("strategy", cfg.Writer.Strategy))

	var runErr error
	select {
	case <-ctx.Done():
		logging.LogInfo("Shutdown signal received, gracefully stopping...")
	case runErr = <-serverErr:
		if runErr != nil {
			logging.LogError("HTTP server failed", zap.Error(runErr))
		}
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.LogSuccess("Wave portal stopped gracefully")
	case <-time.After(10 * time.Second):
		logging.LogWarn("Timeout waiting for workers to stop, forcing shutdown")
	}

	return runErr
}

package commands

// Command to run the Telegram wave monitor standalone
// Implements graceful shutdown for proper termination

import (
	"fmt"
	"sync"
	"time"

	"wave-portal/bots_monitor"
	storage "wave-portal/internal/infra/fs"
	logging "wave-portal/internal/infra/log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Post new waves to Telegram",
	Long:  `Run only the Telegram monitor: post every new wave to telegram.chat_id and answer /waves, /total and /helps there.`,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().String("telegram.chat_id", "", "Telegram chat to post to (env: TELEGRAM_CHAT_ID)")
	watchCmd.Flags().Int("telegram.check_interval", 30, "Seconds between wave checks")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := cfg.RequireTelegram(); err != nil {
		return err
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logging.LogError("Failed to create Telegram bot", zap.Error(err))
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	logging.LogInfo("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	chain, err := newChainClient(cfg)
	if err != nil {
		return err
	}
	reader := newReader(cfg, chain)
	monitor := bots_monitor.NewWaveMonitor(bot, cfg.Telegram.ChatID, reader,
		storage.NewStore(cfg.App.DataDir), cfg.Starknet.ExplorerTxURL, cfg.Telegram.CheckIntervalDuration())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		bots_monitor.RunCommandHandler(ctx, bot, cfg.Telegram.ChatID, reader)
	}()

	logging.LogSuccess("Wave monitor is running", zap.String("chatID", cfg.Telegram.ChatID))

	<-ctx.Done()
	logging.LogInfo("Shutdown signal received, gracefully stopping...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.LogSuccess("Wave monitor stopped gracefully")
	case <-time.After(10 * time.Second):
		logging.LogWarn("Timeout waiting for monitor to stop")
	}
	return nil
}

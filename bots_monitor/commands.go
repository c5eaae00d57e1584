package bots_monitor

// Telegram commands for the wave chat

import (
	"context"
	"fmt"
	"html"
	"strings"

	log "wave-portal/internal/infra/log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const defaultListSize = 5

// RunCommandHandler answers /waves, /total and /helps in chatID until ctx ends
func RunCommandHandler(ctx context.Context, bot *tgbotapi.BotAPI, chatID string, source WaveSource) {
	if bot == nil {
		log.LogWarn("Bot is nil, command handler not started")
		return
	}
	expected := parseChatID(chatID)
	if expected == 0 {
		log.LogWarn("Chat ID is empty, command handler not started")
		return
	}

	log.LogInfo("Starting command handler", zap.Int64("chatID", expected))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		bot.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil || update.Message.Chat.ID != expected {
			continue
		}
		handleCommand(ctx, bot, source, update.Message)
	}
	log.LogInfo("Command handler stopped")
}

func handleCommand(ctx context.Context, bot Sender, source WaveSource, message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}
	command := message.Command()
	args := strings.TrimSpace(message.CommandArguments())

	username := ""
	if message.From != nil {
		username = message.From.UserName
	}
	log.LogDebug("Received command",
		zap.String("command", command),
		zap.String("args", args),
		zap.Int64("chatID", message.Chat.ID),
		zap.String("username", username))

	var text string
	switch command {
	case "waves":
		n := defaultListSize
		if args != "" {
			if _, err := fmt.Sscanf(args, "%d", &n); err != nil || n <= 0 || n > 20 {
				text = "Usage: /waves {count}\n\nExample: /waves 10 (max 20)"
				break
			}
		}
		text = formatWavesList(ctx, source, n)
	case "total":
		text = formatTotals(ctx, source)
	case "helps":
		text = "" +
			"Commands:\n" +
			"• <code>/waves {count}</code> - latest waves, 5 by default\n" +
			"• <code>/total</code> - wave count from events and from the contract\n" +
			"• <code>/helps</code> - this message"
	default:
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyToMessageID = message.MessageID
	if _, err := bot.Send(msg); err != nil {
		log.LogError("Failed to send command reply", zap.String("command", command), zap.Error(err))
	}
}

func formatWavesList(ctx context.Context, source WaveSource, n int) string {
	snap := source.Refresh(ctx)
	if len(snap.Waves) == 0 {
		if snap.Stale {
			return "Could not load waves right now, please try again later"
		}
		return "No waves yet"
	}
	if n > len(snap.Waves) {
		n = len(snap.Waves)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Latest %d of %d waves:\n\n<blockquote>", n, snap.EventTotal)
	for i, w := range snap.Waves[:n] {
		msg := html.EscapeString(w.Message)
		if !w.Valid {
			msg = "<i>" + msg + "</i>"
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, msg)
	}
	b.WriteString("</blockquote>")
	if snap.Stale {
		b.WriteString("\n<i>cached, last refresh failed</i>")
	}
	return b.String()
}

func formatTotals(ctx context.Context, source WaveSource) string {
	snap := source.Refresh(ctx)
	text := fmt.Sprintf("Total waves:\n\n<blockquote>Events: <code>%d</code>\nContract: <code>%s</code></blockquote>",
		snap.EventTotal, snap.ContractTotal)
	if snap.ContractTotalErr != "" {
		text += "\n<i>contract counter unavailable</i>"
	}
	return text
}

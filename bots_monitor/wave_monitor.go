package bots_monitor

// New waves monitor + Telegram message formatting.

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"wave-portal/internal/features/celebrate"
	"wave-portal/internal/features/portal"
	"wave-portal/internal/features/waves"
	storage "wave-portal/internal/infra/fs"
	log "wave-portal/internal/infra/log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	seenWavesFile = "wave_monitor/seen_waves.json"
	// keep the newest keys only, older waves never come back into view
	maxSeenKeys = 5000
)

// Sender - the part of *tgbotapi.BotAPI the monitor uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// WaveSource - coalesced wave reads (portal or reader)
type WaveSource interface {
	Refresh(ctx context.Context) waves.Snapshot
}

type seenWaves struct {
	Keys      []string  `json:"keys"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type WaveMonitor struct {
	bot           Sender
	chatID        int64
	source        WaveSource
	store         *storage.Store
	explorerTxURL string
	interval      time.Duration

	mu       sync.Mutex
	notified map[string]bool
}

func NewWaveMonitor(bot Sender, chatID string, source WaveSource, store *storage.Store, explorerTxURL string, interval time.Duration) *WaveMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &WaveMonitor{
		bot:           bot,
		chatID:        parseChatID(chatID),
		source:        source,
		store:         store,
		explorerTxURL: explorerTxURL,
		interval:      interval,
		notified:      make(map[string]bool),
	}
}

// parseChatID - "-1003190218710" style ids
func parseChatID(chatIDStr string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(chatIDStr), 10, 64)
	if err != nil {
		log.LogWarn("Invalid Telegram chat id", zap.String("chatID", chatIDStr))
		return 0
	}
	return id
}

// waveKey - tx hash, or block + message for events without one
func waveKey(w waves.Wave) string {
	if w.TxHash != "" {
		return w.TxHash
	}
	return fmt.Sprintf("%d:%s", w.BlockNumber, w.Message)
}

// findNewWaves returns waves whose key is not in seen, oldest first so they post in order.
// current is most recent first.
func findNewWaves(seen map[string]bool, current []waves.Wave) []waves.Wave {
	var fresh []waves.Wave
	for i := len(current) - 1; i >= 0; i-- {
		if !seen[waveKey(current[i])] {
			fresh = append(fresh, current[i])
		}
	}
	return fresh
}

// formatWaveMessage assembles wave message text for Telegram (HTML mode)
func formatWaveMessage(w waves.Wave, total int) string {
	message := "👋 <b>New wave</b>\n\n"
	if w.Valid {
		message += fmt.Sprintf("<blockquote>%s</blockquote>\n", html.EscapeString(w.Message))
	} else {
		message += fmt.Sprintf("<i>%s</i>\n", html.EscapeString(w.Message))
	}
	message += fmt.Sprintf("Block: <code>%d</code>\n", w.BlockNumber)
	if w.TxHash != "" {
		message += fmt.Sprintf("Tx: <code>%s</code>\n", w.TxHash)
	}
	message += fmt.Sprintf("Total waves: <code>%d</code>", total)
	return message
}

func (m *WaveMonitor) explorerKeyboard(txHash string) *tgbotapi.InlineKeyboardMarkup {
	if m.explorerTxURL == "" || txHash == "" {
		return nil
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("View on explorer", m.explorerTxURL+txHash),
		),
	)
	return &keyboard
}

func (m *WaveMonitor) loadSeen() (map[string]bool, bool) {
	var saved seenWaves
	ok, err := m.store.LoadJSON(seenWavesFile, &saved)
	if err != nil {
		log.LogWarn("Failed to load seen waves, starting fresh", zap.Error(err))
		return map[string]bool{}, false
	}
	seen := make(map[string]bool, len(saved.Keys))
	for _, k := range saved.Keys {
		seen[k] = true
	}
	return seen, ok
}

func (m *WaveMonitor) saveSeen(current []waves.Wave) {
	keys := make([]string, 0, len(current))
	for _, w := range current {
		keys = append(keys, waveKey(w))
		if len(keys) >= maxSeenKeys {
			break
		}
	}
	if err := m.store.SaveJSON(seenWavesFile, seenWaves{Keys: keys, UpdatedAt: time.Now()}); err != nil {
		log.LogWarn("Failed to save seen waves", zap.Error(err))
	}
}

// Check runs one round: refresh, diff against the saved set, post what is new.
// The first round without a saved set only records what exists.
func (m *WaveMonitor) Check(ctx context.Context) (int, error) {
	snap := m.source.Refresh(ctx)
	if snap.Stale {
		return 0, fmt.Errorf("wave list is stale: %s", snap.LastError)
	}

	seen, primed := m.loadSeen()
	if !primed {
		m.saveSeen(snap.Waves)
		log.LogInfo("Wave monitor primed", zap.Int("waves", len(snap.Waves)))
		return 0, nil
	}

	fresh := findNewWaves(seen, snap.Waves)
	sent := 0
	for _, w := range fresh {
		m.mu.Lock()
		already := m.notified[w.TxHash]
		m.mu.Unlock()
		if already {
			continue
		}

		msg := tgbotapi.NewMessage(m.chatID, formatWaveMessage(w, snap.EventTotal))
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if kb := m.explorerKeyboard(w.TxHash); kb != nil {
			msg.ReplyMarkup = kb
		}
		if _, err := m.bot.Send(msg); err != nil {
			log.LogError("Failed to send wave notification", zap.String("txHash", w.TxHash), zap.Error(err))
			continue
		}
		sent++
		log.LogInfo("Sent wave notification", zap.String("txHash", w.TxHash), zap.Uint64("block", w.BlockNumber))
	}

	m.saveSeen(snap.Waves)
	return sent, nil
}

// Run checks every interval until ctx ends
func (m *WaveMonitor) Run(ctx context.Context) {
	log.LogInfo("Starting wave monitor...",
		zap.Int64("chatID", m.chatID),
		zap.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	if _, err := m.Check(ctx); err != nil {
		log.LogWarn("Wave monitor check failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			log.LogInfo("Wave monitor stopped")
			return
		case <-ticker.C:
			n, err := m.Check(ctx)
			if err != nil {
				log.LogWarn("Wave monitor check failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.LogInfo("Posted new waves", zap.Int("count", n))
			}
		}
	}
}

// NotifyConfirmed posts the celebration card for a wave sent through this process.
// Registered as a portal OnConfirmed hook; the monitor then skips the same wave.
func (m *WaveMonitor) NotifyConfirmed(ctx context.Context, cw portal.ConfirmedWave) {
	m.mu.Lock()
	m.notified[cw.Tx.Hash] = true
	m.mu.Unlock()

	card := celebrate.Card{TxHash: cw.Tx.Hash, Message: cw.Tx.Message}
	if m.explorerTxURL != "" {
		card.ExplorerURL = m.explorerTxURL + cw.Tx.Hash
	}
	caption := fmt.Sprintf("🎉 <b>Wave confirmed</b>\n\n<blockquote>%s</blockquote>\nTx: <code>%s</code>",
		html.EscapeString(cw.Tx.Message), cw.Tx.Hash)

	data, err := celebrate.RenderPNG(card)
	if err != nil {
		log.LogWarn("Failed to render celebration card, sending text", zap.Error(err))
		m.sendConfirmationText(cw.Tx.Hash, caption)
		return
	}

	photo := tgbotapi.NewPhoto(m.chatID, tgbotapi.FileBytes{Name: "wave.png", Bytes: data})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if kb := m.explorerKeyboard(cw.Tx.Hash); kb != nil {
		photo.ReplyMarkup = kb
	}
	if _, err := m.bot.Send(photo); err != nil {
		log.LogError("Failed to send celebration card", zap.String("txHash", cw.Tx.Hash), zap.Error(err))
		m.sendConfirmationText(cw.Tx.Hash, caption)
		return
	}
	log.LogInfo("Sent confirmation card", zap.String("txHash", cw.Tx.Hash))
}

// sendConfirmationText - fallback when the card cannot be rendered or sent
func (m *WaveMonitor) sendConfirmationText(txHash, caption string) {
	msg := tgbotapi.NewMessage(m.chatID, caption)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := m.bot.Send(msg); err != nil {
		log.LogError("Failed to send confirmation text", zap.String("txHash", txHash), zap.Error(err))
		return
	}
	log.LogInfo("Sent confirmation text", zap.String("txHash", txHash))
}

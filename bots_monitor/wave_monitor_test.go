package bots_monitor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"wave-portal/internal/features/poller"
	"wave-portal/internal/features/portal"
	"wave-portal/internal/features/waves"
	storage "wave-portal/internal/infra/fs"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent     []tgbotapi.Chattable
	err      error
	photoErr error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if _, ok := c.(tgbotapi.PhotoConfig); ok && f.photoErr != nil {
		return tgbotapi.Message{}, f.photoErr
	}
	return tgbotapi.Message{}, f.err
}

func (f *fakeSender) texts() []string {
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeSource struct {
	snap waves.Snapshot
}

func (f *fakeSource) Refresh(ctx context.Context) waves.Snapshot { return f.snap }

func snapshotOf(ws ...waves.Wave) waves.Snapshot {
	return waves.Snapshot{Waves: ws, EventTotal: len(ws), ContractTotal: "0"}
}

func TestFindNewWavesOldestFirst(t *testing.T) {
	current := []waves.Wave{
		{Message: "c", TxHash: "0x3"},
		{Message: "b", TxHash: "0x2"},
		{Message: "a", TxHash: "0x1"},
	}
	fresh := findNewWaves(map[string]bool{"0x1": true}, current)
	require.Len(t, fresh, 2)
	assert.Equal(t, "b", fresh[0].Message)
	assert.Equal(t, "c", fresh[1].Message)

	assert.Empty(t, findNewWaves(map[string]bool{"0x1": true, "0x2": true, "0x3": true}, current))
}

func TestWaveKeyWithoutHash(t *testing.T) {
	assert.Equal(t, "0xabc", waveKey(waves.Wave{TxHash: "0xabc", BlockNumber: 5}))
	assert.Equal(t, "5:hi", waveKey(waves.Wave{BlockNumber: 5, Message: "hi"}))
}

func TestFormatWaveMessageEscapes(t *testing.T) {
	msg := formatWaveMessage(waves.Wave{Message: "<b>hi</b>", TxHash: "0x1", BlockNumber: 7, Valid: true}, 3)
	assert.Contains(t, msg, "&lt;b&gt;hi&lt;/b&gt;")
	assert.Contains(t, msg, "Block: <code>7</code>")
	assert.Contains(t, msg, "Total waves: <code>3</code>")

	msg = formatWaveMessage(waves.Wave{Message: "<invalid encoding>"}, 1)
	assert.Contains(t, msg, "<i>&lt;invalid encoding&gt;</i>")
	assert.NotContains(t, msg, "Tx:")
}

func TestCheckPrimesThenPostsNew(t *testing.T) {
	sender := &fakeSender{}
	source := &fakeSource{snap: snapshotOf(waves.Wave{Message: "a", TxHash: "0x1", Valid: true})}
	m := NewWaveMonitor(sender, "-100123", source, storage.NewStore(t.TempDir()), "https://voyager.online/tx/", 0)

	n, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, sender.sent)

	source.snap = snapshotOf(
		waves.Wave{Message: "c", TxHash: "0x3", Valid: true},
		waves.Wave{Message: "b", TxHash: "0x2", Valid: true},
		waves.Wave{Message: "a", TxHash: "0x1", Valid: true},
	)
	n, err = m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	texts := sender.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "<blockquote>b</blockquote>")
	assert.Contains(t, texts[1], "<blockquote>c</blockquote>")
	msg := sender.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(-100123), msg.ChatID)
	assert.NotNil(t, msg.ReplyMarkup)

	n, err = m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCheckSkipsStaleAndNotified(t *testing.T) {
	sender := &fakeSender{}
	source := &fakeSource{snap: snapshotOf()}
	store := storage.NewStore(t.TempDir())
	m := NewWaveMonitor(sender, "1", source, store, "", 0)

	_, err := m.Check(context.Background())
	require.NoError(t, err)

	source.snap = waves.Snapshot{Stale: true, LastError: "rpc down"}
	_, err = m.Check(context.Background())
	assert.Error(t, err)

	m.NotifyConfirmed(context.Background(), portal.ConfirmedWave{
		Tx:     portal.PendingTx{Hash: "0x9", Message: "mine"},
		Result: poller.Result{TxHash: "0x9", Outcome: poller.Confirmed},
	})
	require.Len(t, sender.sent, 1)
	photo, ok := sender.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Contains(t, photo.Caption, "mine")

	source.snap = snapshotOf(waves.Wave{Message: "mine", TxHash: "0x9", Valid: true})
	n, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, sender.sent, 1)
}

func TestCheckContinuesAfterSendError(t *testing.T) {
	sender := &fakeSender{}
	source := &fakeSource{snap: snapshotOf()}
	m := NewWaveMonitor(sender, "1", source, storage.NewStore(t.TempDir()), "", 0)
	_, err := m.Check(context.Background())
	require.NoError(t, err)

	sender.err = errors.New("telegram down")
	source.snap = snapshotOf(waves.Wave{Message: "a", TxHash: "0x1", Valid: true})
	n, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, sender.sent, 1)
}

func TestNotifyConfirmedFallsBackToText(t *testing.T) {
	confirmed := portal.ConfirmedWave{
		Tx:     portal.PendingTx{Hash: "0x7", Message: "<hi>"},
		Result: poller.Result{TxHash: "0x7", Outcome: poller.Confirmed},
	}

	t.Run("photo rejected", func(t *testing.T) {
		sender := &fakeSender{photoErr: errors.New("photo too large")}
		m := NewWaveMonitor(sender, "1", &fakeSource{}, storage.NewStore(t.TempDir()), "", 0)

		m.NotifyConfirmed(context.Background(), confirmed)
		require.Len(t, sender.sent, 2)
		texts := sender.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "&lt;hi&gt;")
		assert.Contains(t, texts[0], "0x7")
	})

	t.Run("telegram down", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("telegram down"), photoErr: errors.New("telegram down")}
		m := NewWaveMonitor(sender, "1", &fakeSource{}, storage.NewStore(t.TempDir()), "", 0)

		assert.NotPanics(t, func() { m.NotifyConfirmed(context.Background(), confirmed) })
		assert.Len(t, sender.sent, 2)
		assert.Len(t, sender.texts(), 1)
	})
}

func commandMessage(text string) *tgbotapi.Message {
	cmd, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		MessageID: 10,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: 1},
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func TestHandleCommands(t *testing.T) {
	source := &fakeSource{snap: waves.Snapshot{
		Waves:         []waves.Wave{{Message: "newest", Valid: true}, {Message: "older", Valid: true}},
		EventTotal:    2,
		ContractTotal: "2",
	}}

	sender := &fakeSender{}
	handleCommand(context.Background(), sender, source, commandMessage("/waves 1"))
	texts := sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Latest 1 of 2 waves")
	assert.Contains(t, texts[0], "1. newest")
	assert.NotContains(t, texts[0], "older")

	sender = &fakeSender{}
	handleCommand(context.Background(), sender, source, commandMessage("/total"))
	assert.Contains(t, sender.texts()[0], "Contract: <code>2</code>")

	sender = &fakeSender{}
	handleCommand(context.Background(), sender, source, commandMessage("/waves abc"))
	assert.Contains(t, sender.texts()[0], "Usage: /waves")

	sender = &fakeSender{}
	handleCommand(context.Background(), sender, source, commandMessage("/unknown"))
	assert.Empty(t, sender.sent)

	sender = &fakeSender{}
	handleCommand(context.Background(), sender, &fakeSource{}, commandMessage("/waves"))
	assert.Equal(t, "No waves yet", sender.texts()[0])
}

package portal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wave-portal/internal/features/poller"
	"wave-portal/internal/features/waves"
	"wave-portal/internal/features/writer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	refreshes atomic.Int32
}

func (f *fakeReader) Refresh(ctx context.Context) waves.Snapshot {
	f.refreshes.Add(1)
	return f.Snapshot()
}

func (f *fakeReader) Snapshot() waves.Snapshot {
	return waves.Snapshot{Waves: []waves.Wave{{Message: "hi", Valid: true}}, EventTotal: 1, ContractTotal: "1"}
}

type fakeWriter struct {
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeWriter) SendWave(ctx context.Context, req writer.WaveRequest) (writer.TxHandle, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	if f.err != nil {
		return writer.TxHandle{}, f.err
	}
	return writer.TxHandle{Hash: "0xabc", Strategy: writer.StrategyCustodial, SubmittedAt: time.Now()}, nil
}

type fakeConfirmer struct {
	outcome poller.Outcome
	block   bool
	release chan struct{}
}

func (f *fakeConfirmer) Wait(ctx context.Context, txHash string) (poller.Result, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return poller.Result{TxHash: txHash, Outcome: poller.Cancelled}, nil
		}
	}
	if f.block {
		<-ctx.Done()
		return poller.Result{TxHash: txHash, Outcome: poller.Cancelled}, nil
	}
	return poller.Result{TxHash: txHash, Outcome: f.outcome, Attempts: 20}, nil
}

func TestSendWaveConfirmedRunsSideEffects(t *testing.T) {
	reader := &fakeReader{}
	now := time.Unix(1_700_000_000, 0)
	p := New(reader, &fakeWriter{}, &fakeConfirmer{outcome: poller.Confirmed}, Options{Now: func() time.Time { return now }})

	var mu sync.Mutex
	var confirmed []ConfirmedWave
	p.OnConfirmed(func(ctx context.Context, w ConfirmedWave) {
		mu.Lock()
		confirmed = append(confirmed, w)
		mu.Unlock()
	})

	handle, err := p.SendWave(context.Background(), writer.WaveRequest{Message: "gm"})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", handle.Hash)
	p.Close()

	mu.Lock()
	require.Len(t, confirmed, 1)
	assert.Equal(t, "gm", confirmed[0].Tx.Message)
	mu.Unlock()
	assert.Equal(t, int32(1), reader.refreshes.Load())

	st := p.State()
	assert.True(t, st.Celebrating)
	assert.Equal(t, "0xabc", st.CelebrationHash)
	assert.Equal(t, now.Add(DefaultCelebrationWindow), st.CelebrationUntil)
	assert.Empty(t, st.Pending)
	require.NotNil(t, st.LastOutcome)
	assert.Equal(t, poller.Confirmed, st.LastOutcome.Outcome)

	res, ok := p.TxStatus("0xabc")
	require.True(t, ok)
	assert.Equal(t, poller.Confirmed, res.Outcome)
	assert.Equal(t, "gm", p.Message("0xabc"))
}

func TestCelebrationWindowCloses(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	p := New(&fakeReader{}, &fakeWriter{}, &fakeConfirmer{outcome: poller.Confirmed}, Options{Now: now})

	_, err := p.SendWave(context.Background(), writer.WaveRequest{Message: "gm"})
	require.NoError(t, err)
	p.Close()
	assert.True(t, p.State().Celebrating)

	mu.Lock()
	clock = clock.Add(6 * time.Second)
	mu.Unlock()
	assert.False(t, p.State().Celebrating)
}

func TestSendWaveAbandonedHasNoSideEffects(t *testing.T) {
	reader := &fakeReader{}
	p := New(reader, &fakeWriter{}, &fakeConfirmer{outcome: poller.Abandoned}, Options{})
	var hooks atomic.Int32
	p.OnConfirmed(func(context.Context, ConfirmedWave) { hooks.Add(1) })

	_, err := p.SendWave(context.Background(), writer.WaveRequest{Message: "gm"})
	require.NoError(t, err)
	p.Close()

	assert.Equal(t, int32(0), hooks.Load())
	assert.Equal(t, int32(0), reader.refreshes.Load())
	st := p.State()
	assert.False(t, st.Celebrating)
	require.NotNil(t, st.LastOutcome)
	assert.Equal(t, poller.Abandoned, st.LastOutcome.Outcome)
	assert.Contains(t, st.LastSendError, "not confirmed")
}

func TestSendWaveErrorIsSurfaced(t *testing.T) {
	p := New(&fakeReader{}, &fakeWriter{err: &writer.ValidationError{Missing: []string{"PIN"}}}, &fakeConfirmer{}, Options{})
	defer p.Close()

	_, err := p.SendWave(context.Background(), writer.WaveRequest{Message: "gm"})
	require.Error(t, err)
	assert.True(t, writer.IsValidationError(err))

	st := p.State()
	assert.Equal(t, "Please provide PIN", st.LastSendError)
	assert.Empty(t, st.Pending)
	_, ok := p.TxStatus("0xabc")
	assert.False(t, ok)
}

func TestCloseCancelsPendingWait(t *testing.T) {
	p := New(&fakeReader{}, &fakeWriter{}, &fakeConfirmer{block: true}, Options{})

	_, err := p.SendWave(context.Background(), writer.WaveRequest{Message: "gm"})
	require.NoError(t, err)
	res, ok := p.TxStatus("0xabc")
	require.True(t, ok)
	assert.Equal(t, poller.Pending, res.Outcome)
	assert.Len(t, p.State().Pending, 1)

	p.Close()
	res, ok = p.TxStatus("0xabc")
	require.True(t, ok)
	assert.Equal(t, poller.Cancelled, res.Outcome)
}

func TestRunSkipsGeneralRefreshWhileSending(t *testing.T) {
	reader := &fakeReader{}
	w := &fakeWriter{started: make(chan struct{}), release: make(chan struct{}), err: errors.New("boom")}
	p := New(reader, w, &fakeConfirmer{}, Options{GeneralInterval: 5 * time.Millisecond, PendingInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	sendDone := make(chan struct{})
	go func() {
		p.SendWave(context.Background(), writer.WaveRequest{Message: "gm"})
		close(sendDone)
	}()
	<-w.started

	// let the initial refresh land, then count while the send is held
	time.Sleep(20 * time.Millisecond)
	during := reader.refreshes.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, during, reader.refreshes.Load())

	close(w.release)
	<-sendDone
	assert.Eventually(t, func() bool { return reader.refreshes.Load() > during }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestSendWaveAfterCloseIsRejected(t *testing.T) {
	w := &fakeWriter{started: make(chan struct{}), release: make(chan struct{})}
	p := New(&fakeReader{}, w, &fakeConfirmer{outcome: poller.Confirmed}, Options{})

	// a send in flight while Close runs is not tracked afterwards
	sent := make(chan error, 1)
	go func() {
		_, err := p.SendWave(context.Background(), writer.WaveRequest{Message: "gm"})
		sent <- err
	}()
	<-w.started
	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.closed
	}, time.Second, time.Millisecond)
	close(w.release)
	require.NoError(t, <-sent)
	<-closed
	assert.Empty(t, p.State().Pending)

	_, err := p.SendWave(context.Background(), writer.WaveRequest{Message: "gm"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunRefreshesWhileTransactionPending(t *testing.T) {
	reader := &fakeReader{}
	confirm := &fakeConfirmer{outcome: poller.Abandoned, release: make(chan struct{})}
	p := New(reader, &fakeWriter{}, confirm, Options{GeneralInterval: time.Hour, PendingInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return reader.refreshes.Load() == 1 }, time.Second, time.Millisecond)

	// nothing pending, the pending ticker stays quiet
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), reader.refreshes.Load())

	_, err := p.SendWave(context.Background(), writer.WaveRequest{Message: "gm"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return reader.refreshes.Load() >= 3 }, time.Second, time.Millisecond)

	close(confirm.release)
	require.Eventually(t, func() bool { return len(p.State().Pending) == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	after := reader.refreshes.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, reader.refreshes.Load())

	cancel()
	<-done
}

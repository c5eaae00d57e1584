package portal

// Portal owns the page state: the current wave snapshot, sends in flight,
// transactions waiting for confirmation and the celebration window.
// Web handlers, the CLI and the Telegram watcher all go through it.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"wave-portal/internal/features/poller"
	"wave-portal/internal/features/waves"
	"wave-portal/internal/features/writer"
	"wave-portal/internal/infra/log"

	"go.uber.org/zap"
)

const (
	DefaultGeneralInterval   = 15 * time.Second
	DefaultPendingInterval   = 5 * time.Second
	DefaultCelebrationWindow = 5 * time.Second

	maxOutcomes = 100
)

// ErrClosed - SendWave after Close
var ErrClosed = errors.New("portal is shutting down")

// Refresher - coalesced wave reads
type Refresher interface {
	Refresh(ctx context.Context) waves.Snapshot
	Snapshot() waves.Snapshot
}

// Confirmer - waits for a transaction to confirm
type Confirmer interface {
	Wait(ctx context.Context, txHash string) (poller.Result, error)
}

type Options struct {
	GeneralInterval   time.Duration
	PendingInterval   time.Duration
	CelebrationWindow time.Duration
	Now               func() time.Time
}

// PendingTx - submitted, not yet confirmed or abandoned
type PendingTx struct {
	Hash        string    `json:"hash"`
	Message     string    `json:"message"`
	Strategy    string    `json:"strategy"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ConfirmedWave - passed to OnConfirmed hooks
type ConfirmedWave struct {
	Tx     PendingTx
	Result poller.Result
}

// State - everything the page renders
type State struct {
	waves.Snapshot
	Refreshing       bool           `json:"refreshing"`
	Sending          bool           `json:"sending"`
	Pending          []PendingTx    `json:"pending"`
	LastOutcome      *poller.Result `json:"lastOutcome,omitempty"`
	LastSendError    string         `json:"lastSendError,omitempty"`
	Celebrating      bool           `json:"celebrating"`
	CelebrationHash  string         `json:"celebrationHash,omitempty"`
	CelebrationUntil time.Time      `json:"celebrationUntil,omitempty"`
}

type Portal struct {
	reader  Refresher
	writer  writer.Writer
	confirm Confirmer
	opts    Options

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu               sync.Mutex
	closed           bool
	refreshing       int
	sending          int
	pending          map[string]PendingTx
	finished         map[string]ConfirmedWave
	finishedOrder    []string
	lastOutcome      *poller.Result
	lastSendError    string
	celebrationHash  string
	celebrationUntil time.Time
	hooks            []func(ctx context.Context, w ConfirmedWave)
}

func New(reader Refresher, w writer.Writer, confirm Confirmer, opts Options) *Portal {
	if opts.GeneralInterval <= 0 {
		opts.GeneralInterval = DefaultGeneralInterval
	}
	if opts.PendingInterval <= 0 {
		opts.PendingInterval = DefaultPendingInterval
	}
	if opts.CelebrationWindow <= 0 {
		opts.CelebrationWindow = DefaultCelebrationWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Portal{
		reader:   reader,
		writer:   w,
		confirm:  confirm,
		opts:     opts,
		baseCtx:  ctx,
		stop:     cancel,
		pending:  make(map[string]PendingTx),
		finished: make(map[string]ConfirmedWave),
	}
}

// OnConfirmed registers a hook run after a wave confirms. Not run for abandoned or cancelled waits.
func (p *Portal) OnConfirmed(hook func(ctx context.Context, w ConfirmedWave)) {
	p.mu.Lock()
	p.hooks = append(p.hooks, hook)
	p.mu.Unlock()
}

// Run refreshes every GeneralInterval (skipped while a send is in flight)
// and every PendingInterval while a transaction is waiting. Blocks until ctx ends,
// then cancels outstanding confirmation waits.
func (p *Portal) Run(ctx context.Context) {
	defer p.Close()

	p.Refresh(ctx)

	general := time.NewTicker(p.opts.GeneralInterval)
	defer general.Stop()
	pendingTicker := time.NewTicker(p.opts.PendingInterval)
	defer pendingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.LogInfo("Portal refresh loops stopped")
			return
		case <-general.C:
			if p.isSending() {
				log.LogDebug("Skipping refresh, send in flight")
				continue
			}
			p.Refresh(ctx)
		case <-pendingTicker.C:
			if p.hasPending() {
				p.Refresh(ctx)
			}
		}
	}
}

// Close cancels confirmation waits and waits for their goroutines.
// Later sends fail with ErrClosed.
func (p *Portal) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.stop()
	p.wg.Wait()
}

// Refresh runs one read round, shared with any round already in flight
func (p *Portal) Refresh(ctx context.Context) waves.Snapshot {
	p.mu.Lock()
	p.refreshing++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.refreshing--
		p.mu.Unlock()
	}()
	return p.reader.Refresh(ctx)
}

// SendWave submits the wave and starts waiting for its confirmation in the background
func (p *Portal) SendWave(ctx context.Context, req writer.WaveRequest) (writer.TxHandle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return writer.TxHandle{}, ErrClosed
	}
	p.sending++
	p.mu.Unlock()

	handle, err := p.writer.SendWave(ctx, req)

	p.mu.Lock()
	p.sending--
	if err != nil {
		p.lastSendError = writer.UserMessage(err)
		p.mu.Unlock()
		log.LogError("Wave send failed", zap.Error(err))
		return writer.TxHandle{}, err
	}
	tx := PendingTx{Hash: handle.Hash, Message: req.Message, Strategy: handle.Strategy, SubmittedAt: handle.SubmittedAt}
	p.lastSendError = ""
	if p.closed {
		// submitted while shutting down, nobody is left to wait for it
		p.mu.Unlock()
		log.LogWarn("Wave submitted during shutdown, not tracking confirmation", zap.String("txHash", handle.Hash))
		return handle, nil
	}
	p.pending[handle.Hash] = tx
	// Add under p.mu so it cannot race Close's Wait
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.await(tx)
	}()
	return handle, nil
}

func (p *Portal) await(tx PendingTx) {
	res, err := p.confirm.Wait(p.baseCtx, tx.Hash)
	if err != nil {
		log.LogError("Confirmation wait failed", zap.String("txHash", tx.Hash), zap.Error(err))
		res = poller.Result{TxHash: tx.Hash, Outcome: poller.Abandoned, LastErr: err.Error()}
	}

	p.mu.Lock()
	delete(p.pending, tx.Hash)
	p.recordOutcome(tx, res)
	var hooks []func(context.Context, ConfirmedWave)
	switch res.Outcome {
	case poller.Confirmed:
		p.celebrationHash = tx.Hash
		p.celebrationUntil = p.opts.Now().Add(p.opts.CelebrationWindow)
		hooks = append(hooks, p.hooks...)
	case poller.Abandoned:
		p.lastSendError = res.Describe()
	}
	p.mu.Unlock()

	if res.Outcome != poller.Confirmed {
		log.LogWarn("Wave not confirmed", zap.String("txHash", tx.Hash), zap.String("outcome", string(res.Outcome)))
		return
	}

	p.Refresh(p.baseCtx)
	for _, hook := range hooks {
		hook(p.baseCtx, ConfirmedWave{Tx: tx, Result: res})
	}
}

// caller holds p.mu
func (p *Portal) recordOutcome(tx PendingTx, res poller.Result) {
	if _, ok := p.finished[tx.Hash]; !ok {
		p.finishedOrder = append(p.finishedOrder, tx.Hash)
	}
	p.finished[tx.Hash] = ConfirmedWave{Tx: tx, Result: res}
	for len(p.finishedOrder) > maxOutcomes {
		delete(p.finished, p.finishedOrder[0])
		p.finishedOrder = p.finishedOrder[1:]
	}
	r := res
	p.lastOutcome = &r
}

// TxStatus - pending, or the outcome of a finished wait. False when the hash is unknown.
func (p *Portal) TxStatus(hash string) (poller.Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[hash]; ok {
		return poller.Result{TxHash: hash, Outcome: poller.Pending}, true
	}
	f, ok := p.finished[hash]
	return f.Result, ok
}

// Message - the text sent with a tracked transaction, "" when unknown
func (p *Portal) Message(hash string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tx, ok := p.pending[hash]; ok {
		return tx.Message
	}
	return p.finished[hash].Tx.Message
}

func (p *Portal) State() State {
	snap := p.reader.Snapshot()

	p.mu.Lock()
	defer p.mu.Unlock()

	st := State{
		Snapshot:      snap,
		Refreshing:    p.refreshing > 0,
		Sending:       p.sending > 0,
		Pending:       make([]PendingTx, 0, len(p.pending)),
		LastSendError: p.lastSendError,
	}
	for _, tx := range p.pending {
		st.Pending = append(st.Pending, tx)
	}
	sort.Slice(st.Pending, func(i, j int) bool { return st.Pending[i].SubmittedAt.After(st.Pending[j].SubmittedAt) })
	if p.lastOutcome != nil {
		o := *p.lastOutcome
		st.LastOutcome = &o
	}
	if p.celebrationHash != "" && p.opts.Now().Before(p.celebrationUntil) {
		st.Celebrating = true
		st.CelebrationHash = p.celebrationHash
		st.CelebrationUntil = p.celebrationUntil
	}
	return st
}

func (p *Portal) isSending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sending > 0
}

func (p *Portal) hasPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending) > 0
}

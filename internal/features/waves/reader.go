package waves

// Chain reader: wave events and the contract counter.
// All refreshes share one in-flight RPC round, failed rounds keep the last good waves.

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"wave-portal/internal/clients_api/starknet"
	"wave-portal/internal/features/codec"
	"wave-portal/internal/infra/log"
	"wave-portal/internal/infra/retry"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TotalEntrypoint - view function returning the number of waves
const TotalEntrypoint = "total_waves"

// Chain - the RPC calls the reader needs
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	Events(ctx context.Context, q starknet.EventQuery) (*starknet.EventPage, error)
	Call(ctx context.Context, contract, entrypoint string, calldata []*big.Int) ([]*big.Int, error)
}

// Wave - one decoded wave message
type Wave struct {
	Message     string `json:"message"`
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber uint64 `json:"blockNumber"`
	Valid       bool   `json:"valid"`
}

// Snapshot - what the last refresh produced.
// EventTotal is always len(Waves), ContractTotal comes from the counter and may lag or lead.
type Snapshot struct {
	Waves            []Wave    `json:"waves"`
	EventTotal       int       `json:"eventTotal"`
	ContractTotal    string    `json:"contractTotal"`
	ContractTotalErr string    `json:"contractTotalError,omitempty"`
	Stale            bool      `json:"stale"`
	LastError        string    `json:"lastError,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type Options struct {
	ContractAddress string
	EventKey        string
	FromBlock       uint64
	ChunkSize       int
	MaxPages        int
	RoundTimeout    time.Duration
	Retry           retry.Options
}

type Reader struct {
	chain Chain
	opts  Options
	group singleflight.Group

	mu       sync.RWMutex
	snapshot Snapshot

	// events before nextFrom are read once and kept in committed, oldest first
	cursorMu  sync.Mutex
	committed []Wave
	nextFrom  uint64
}

func NewReader(chain Chain, opts Options) *Reader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 20
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 50
	}
	if opts.RoundTimeout <= 0 {
		opts.RoundTimeout = 2 * time.Minute
	}
	return &Reader{
		chain:    chain,
		opts:     opts,
		snapshot: Snapshot{ContractTotal: "0"},
		nextFrom: opts.FromBlock,
	}
}

// FetchRecentWaves reads every wave event from FromBlock to the current head,
// most recent first. Transient RPC errors are retried. When a round stops at
// MaxPages the fully read blocks are kept and the next round resumes after
// them, so repeated rounds always reach the head.
func (r *Reader) FetchRecentWaves(ctx context.Context) ([]Wave, error) {
	var head uint64
	err := retry.Do(ctx, r.opts.Retry, func() error {
		n, err := r.chain.BlockNumber(ctx)
		head = n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}

	r.cursorMu.Lock()
	defer r.cursorMu.Unlock()

	from := r.nextFrom
	if head < from {
		return r.newestFirst(nil), nil
	}

	var fresh []Wave
	truncated := false
	token := ""
	for page := 0; ; page++ {
		if page == r.opts.MaxPages {
			truncated = true
			break
		}

		var chunk *starknet.EventPage
		err := retry.Do(ctx, r.opts.Retry, func() error {
			res, err := r.chain.Events(ctx, starknet.EventQuery{
				Address:           r.opts.ContractAddress,
				Key:               r.opts.EventKey,
				FromBlock:         from,
				ToBlock:           head,
				ChunkSize:         r.opts.ChunkSize,
				ContinuationToken: token,
			})
			chunk = res
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get wave events: %w", err)
		}

		for _, ev := range chunk.Events {
			fresh = append(fresh, decodeEvent(ev))
		}

		token = chunk.ContinuationToken
		if token == "" {
			break
		}
	}

	if truncated {
		fresh = r.commit(fresh)
		log.LogWarn("Wave events truncated, page limit reached",
			zap.Int("maxPages", r.opts.MaxPages),
			zap.Uint64("resumeFrom", r.nextFrom),
			zap.Int("waves", len(r.committed)+len(fresh)))
	}
	return r.newestFirst(fresh), nil
}

// commit keeps the events of every block read to the end and moves nextFrom
// to the last, possibly partial, block. The rest is returned uncommitted.
func (r *Reader) commit(fresh []Wave) []Wave {
	if len(fresh) == 0 {
		return fresh
	}
	last := fresh[len(fresh)-1].BlockNumber
	cut := len(fresh)
	for cut > 0 && fresh[cut-1].BlockNumber == last {
		cut--
	}
	if cut == 0 {
		// a single block filled every page, skip the rest of it
		log.LogWarn("Block holds more wave events than one round reads",
			zap.Uint64("block", last),
			zap.Int("read", len(fresh)))
		r.committed = append(r.committed, fresh...)
		r.nextFrom = last + 1
		return nil
	}
	r.committed = append(r.committed, fresh[:cut]...)
	r.nextFrom = last
	return fresh[cut:]
}

func (r *Reader) newestFirst(fresh []Wave) []Wave {
	waves := make([]Wave, 0, len(r.committed)+len(fresh))
	waves = append(waves, r.committed...)
	waves = append(waves, fresh...)
	reverse(waves)
	return waves
}

func decodeEvent(ev starknet.Event) Wave {
	w := Wave{TxHash: ev.TxHash, BlockNumber: ev.BlockNumber, Valid: true}
	message, err := codec.Decode(ev.Data)
	if err != nil {
		log.LogWarn("Undecodable wave event", zap.String("txHash", ev.TxHash), zap.Error(err))
		w.Message = codec.InvalidEncodingMarker
		w.Valid = false
		return w
	}
	w.Message = message
	return w
}

func reverse(waves []Wave) {
	for i, j := 0, len(waves)-1; i < j; i, j = i+1, j-1 {
		waves[i], waves[j] = waves[j], waves[i]
	}
}

// TotalFromContract calls total_waves. A felt or a u256 (low, high) answer is accepted.
func (r *Reader) TotalFromContract(ctx context.Context) (*big.Int, error) {
	var words []*big.Int
	err := retry.Do(ctx, r.opts.Retry, func() error {
		res, err := r.chain.Call(ctx, r.opts.ContractAddress, TotalEntrypoint, nil)
		words = res
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", TotalEntrypoint, err)
	}

	switch len(words) {
	case 0:
		return nil, errUnexpectedShape
	case 1:
		return new(big.Int).Set(words[0]), nil
	default:
		total := new(big.Int).Lsh(words[1], 128)
		return total.Add(total, words[0]), nil
	}
}

var errUnexpectedShape = errors.New("unexpected total_waves result shape")

// FetchTotalCount - decimal counter value, "0" on any failure
func (r *Reader) FetchTotalCount(ctx context.Context) string {
	total, err := r.TotalFromContract(ctx)
	if err != nil {
		log.LogWarn("Falling back to zero total", zap.Error(err))
		return "0"
	}
	return total.String()
}

// Refresh runs one coalesced read round and returns the resulting snapshot.
// Concurrent callers share the same round. A caller whose ctx ends early
// gets the previous snapshot, the round itself keeps going.
func (r *Reader) Refresh(ctx context.Context) Snapshot {
	ch := r.group.DoChan("refresh", func() (interface{}, error) {
		roundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.RoundTimeout)
		defer cancel()
		return r.refresh(roundCtx), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Snapshot).clone()
	case <-ctx.Done():
		return r.Snapshot()
	}
}

func (r *Reader) refresh(ctx context.Context) Snapshot {
	start := time.Now()

	var (
		wg       sync.WaitGroup
		waves    []Wave
		wavesErr error
		total    *big.Int
		totalErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		waves, wavesErr = r.FetchRecentWaves(ctx)
	}()
	go func() {
		defer wg.Done()
		total, totalErr = r.TotalFromContract(ctx)
	}()
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.snapshot
	if wavesErr != nil {
		// keep the last good list
		next.Stale = true
		next.LastError = wavesErr.Error()
		log.LogError("Failed to refresh waves, keeping previous list",
			zap.Int("kept", len(next.Waves)),
			zap.Error(wavesErr))
	} else {
		next.Waves = waves
		next.EventTotal = len(waves)
		next.Stale = false
		next.LastError = ""
		next.UpdatedAt = time.Now()
	}

	if totalErr != nil {
		next.ContractTotal = "0"
		next.ContractTotalErr = totalErr.Error()
		log.LogWarn("Falling back to zero total", zap.Error(totalErr))
	} else {
		next.ContractTotal = total.String()
		next.ContractTotalErr = ""
	}

	r.snapshot = next
	log.LogInfo("Waves refreshed",
		zap.Int("waves", next.EventTotal),
		zap.String("contractTotal", next.ContractTotal),
		zap.Bool("stale", next.Stale),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return next.clone()
}

// Snapshot - last refresh result, safe to keep
func (r *Reader) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.clone()
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.Waves = append([]Wave(nil), s.Waves...)
	if c.Waves == nil {
		c.Waves = []Wave{}
	}
	return c
}

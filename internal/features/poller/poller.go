package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wave-portal/internal/clients_api/starknet"
	"wave-portal/internal/infra/log"

	"go.uber.org/zap"
)

type Outcome string

const (
	Pending   Outcome = "pending"
	Confirmed Outcome = "confirmed"
	Abandoned Outcome = "abandoned"
	Cancelled Outcome = "cancelled"
)

const (
	DefaultMaxAttempts = 20
	DefaultInterval    = 6 * time.Second
)

// ReceiptSource - anything that can look up a receipt by hash
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash string) (*starknet.Receipt, error)
}

type Options struct {
	MaxAttempts int
	Interval    time.Duration
	RequireL1   bool
	// OnCheck runs after every check, for progress output
	OnCheck func(attempt int, receipt *starknet.Receipt, err error)
}

// Result of one Wait
type Result struct {
	TxHash   string            `json:"tx_hash"`
	Outcome  Outcome           `json:"outcome"`
	Attempts int               `json:"attempts"`
	Receipt  *starknet.Receipt `json:"receipt,omitempty"`
	LastErr  string            `json:"last_error,omitempty"`
	Elapsed  time.Duration     `json:"elapsed"`
}

var ErrEmptyHash = errors.New("empty transaction hash")

type Poller struct {
	source ReceiptSource
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(source ReceiptSource, opts Options) *Poller {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{source: source, opts: opts, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Confirmed reports whether the receipt counts as a confirmed wave
func (p *Poller) Confirmed(r *starknet.Receipt) bool {
	return r != nil && r.Succeeded() && r.Final(p.opts.RequireL1)
}

// Wait checks the receipt up to MaxAttempts times, Interval apart.
// The first check happens after one interval, the transaction is never known sooner.
func (p *Poller) Wait(ctx context.Context, txHash string) (Result, error) {
	if txHash == "" {
		return Result{Outcome: Abandoned}, ErrEmptyHash
	}

	start := time.Now()
	res := Result{TxHash: txHash, Outcome: Pending}

	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		if err := p.sleep(ctx, p.opts.Interval); err != nil {
			res.Outcome = Cancelled
			res.Elapsed = time.Since(start)
			log.LogInfo("Confirmation polling cancelled", zap.String("txHash", txHash), zap.Int("attempts", res.Attempts))
			return res, nil
		}

		receipt, err := p.source.TransactionReceipt(ctx, txHash)
		res.Attempts = attempt
		if p.opts.OnCheck != nil {
			p.opts.OnCheck(attempt, receipt, err)
		}

		if err != nil {
			if ctx.Err() != nil {
				res.Outcome = Cancelled
				res.Elapsed = time.Since(start)
				return res, nil
			}
			// not yet known to the node
			res.LastErr = err.Error()
			log.LogDebug("Receipt not available",
				zap.String("txHash", txHash),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		res.Receipt = receipt
		res.LastErr = ""
		if p.Confirmed(receipt) {
			res.Outcome = Confirmed
			res.Elapsed = time.Since(start)
			log.LogSuccess("Transaction confirmed",
				zap.String("txHash", txHash),
				zap.String("finality", receipt.FinalityStatus),
				zap.Int("attempts", attempt))
			return res, nil
		}

		log.LogDebug("Transaction pending",
			zap.String("txHash", txHash),
			zap.Int("attempt", attempt),
			zap.String("execution", receipt.ExecutionStatus),
			zap.String("finality", receipt.FinalityStatus))
	}

	res.Outcome = Abandoned
	res.Elapsed = time.Since(start)
	log.LogWarn("Stopped waiting for confirmation",
		zap.String("txHash", txHash),
		zap.Int("attempts", res.Attempts),
		zap.String("lastError", res.LastErr))
	return res, nil
}

// Describe - one line for the user
func (r Result) Describe() string {
	switch r.Outcome {
	case Confirmed:
		return fmt.Sprintf("Transaction %s confirmed after %d checks", r.TxHash, r.Attempts)
	case Abandoned:
		if r.Receipt != nil && r.Receipt.ExecutionStatus == starknet.ExecutionReverted {
			if r.Receipt.RevertReason != "" {
				return fmt.Sprintf("Transaction %s reverted: %s", r.TxHash, r.Receipt.RevertReason)
			}
			return fmt.Sprintf("Transaction %s reverted", r.TxHash)
		}
		return fmt.Sprintf("Transaction %s is still not confirmed after %d checks, it may confirm later", r.TxHash, r.Attempts)
	case Cancelled:
		return fmt.Sprintf("Stopped waiting for transaction %s", r.TxHash)
	default:
		return fmt.Sprintf("Transaction %s is pending", r.TxHash)
	}
}

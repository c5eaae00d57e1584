package starknet

// Package starknet is the JSON-RPC side of the wave portal.
// It wraps starknet.go so the rest of the code only sees hex strings and big.Int words.

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"wave-portal/internal/infra/httpclient"
	"wave-portal/internal/infra/log"
	"wave-portal/internal/infra/retry"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ExecutionSucceeded = "SUCCEEDED"
	ExecutionReverted  = "REVERTED"
	FinalityAcceptedL2 = "ACCEPTED_ON_L2"
	FinalityAcceptedL1 = "ACCEPTED_ON_L1"
)

// Event - one emitted event, data words as integers
type Event struct {
	BlockNumber uint64
	TxHash      string
	Data        []*big.Int
}

type EventPage struct {
	Events            []Event
	ContinuationToken string
}

// EventQuery - address + single key filter over an inclusive block range
type EventQuery struct {
	Address           string
	Key               string
	FromBlock         uint64
	ToBlock           uint64
	ChunkSize         int
	ContinuationToken string
}

// Receipt - the parts of a transaction receipt the poller looks at
type Receipt struct {
	TxHash          string `json:"tx_hash"`
	ExecutionStatus string `json:"execution_status"`
	FinalityStatus  string `json:"finality_status"`
	RevertReason    string `json:"revert_reason,omitempty"`
}

// Succeeded - execution status SUCCEEDED
func (r *Receipt) Succeeded() bool {
	return r != nil && r.ExecutionStatus == ExecutionSucceeded
}

// Final - accepted on L2 or L1, or only L1 when requireL1 is set
func (r *Receipt) Final(requireL1 bool) bool {
	if r == nil {
		return false
	}
	if requireL1 {
		return r.FinalityStatus == FinalityAcceptedL1
	}
	return r.FinalityStatus == FinalityAcceptedL2 || r.FinalityStatus == FinalityAcceptedL1
}

// Client - RPC provider behind a rate limiter and circuit breaker
type Client struct {
	provider       *rpc.Provider
	rateLimiter    *rate.Limiter
	circuitBreaker *gobreaker.CircuitBreaker
	timeout        time.Duration
}

func NewClient(rpcURL string, timeout time.Duration) (*Client, error) {
	provider, err := rpc.NewProvider(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create starknet provider: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		provider:       provider,
		rateLimiter:    rate.NewLimiter(rate.Limit(10), 20),
		circuitBreaker: httpclient.NewBreaker("StarknetRPC"),
		timeout:        timeout,
	}, nil
}

// IsApplicationError reports whether the node answered with a Starknet error code
// (hash not found, contract error, ...). The node is healthy in that case.
func IsApplicationError(err error) bool {
	var rpcErr *rpc.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code > 0
}

// call runs fn with limiter, breaker and a per call timeout.
// Transport failures are transient and count against the breaker; application errors do neither.
func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestID := log.GenerateRequestID()
	start := time.Now()
	log.LogRequest(requestID, "RPC", method)

	var appErr error
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		err := fn(ctx)
		if IsApplicationError(err) {
			appErr = err
			return nil, nil
		}
		return nil, err
	})
	duration := time.Since(start).Milliseconds()
	if appErr != nil {
		log.LogResponse(requestID, 200, duration, zap.String("endpoint", method), zap.Error(appErr))
		return fmt.Errorf("%s: %w", method, appErr)
	}
	if err != nil {
		log.LogResponse(requestID, 0, duration, zap.String("endpoint", method), zap.Error(err))
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("%s: %w", method, ctx.Err())
		}
		return retry.Transient(fmt.Errorf("%s: %w", method, err))
	}
	log.LogResponse(requestID, 200, duration, zap.String("endpoint", method))
	return nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.call(ctx, "starknet_blockNumber", func(ctx context.Context) error {
		n, err := c.provider.BlockNumber(ctx)
		head = n
		return err
	})
	return head, err
}

func (c *Client) Events(ctx context.Context, q EventQuery) (*EventPage, error) {
	address, err := utils.HexToFelt(q.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid contract address %q: %w", q.Address, err)
	}
	key, err := utils.HexToFelt(q.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid event key %q: %w", q.Key, err)
	}

	input := rpc.EventsInput{
		EventFilter: rpc.EventFilter{
			FromBlock: rpc.WithBlockNumber(q.FromBlock),
			ToBlock:   rpc.WithBlockNumber(q.ToBlock),
			Address:   address,
			Keys:      [][]*felt.Felt{{key}},
		},
		ResultPageRequest: rpc.ResultPageRequest{
			ChunkSize:         q.ChunkSize,
			ContinuationToken: q.ContinuationToken,
		},
	}

	var chunk *rpc.EventChunk
	err = c.call(ctx, "starknet_getEvents", func(ctx context.Context) error {
		res, err := c.provider.Events(ctx, input)
		chunk = res
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &EventPage{ContinuationToken: chunk.ContinuationToken}
	for _, e := range chunk.Events {
		ev := Event{BlockNumber: e.BlockNumber, Data: feltsToInts(e.Data)}
		if e.TransactionHash != nil {
			ev.TxHash = e.TransactionHash.String()
		}
		page.Events = append(page.Events, ev)
	}
	return page, nil
}

// Call a view function at the latest block
func (c *Client) Call(ctx context.Context, contract, entrypoint string, calldata []*big.Int) ([]*big.Int, error) {
	address, err := utils.HexToFelt(contract)
	if err != nil {
		return nil, fmt.Errorf("invalid contract address %q: %w", contract, err)
	}

	args := make([]*felt.Felt, 0, len(calldata))
	for _, w := range calldata {
		args = append(args, utils.BigIntToFelt(w))
	}

	fc := rpc.FunctionCall{
		ContractAddress:    address,
		EntryPointSelector: utils.GetSelectorFromNameFelt(entrypoint),
		Calldata:           args,
	}

	var result []*felt.Felt
	err = c.call(ctx, "starknet_call:"+entrypoint, func(ctx context.Context) error {
		res, err := c.provider.Call(ctx, fc, rpc.WithBlockTag("latest"))
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return feltsToInts(result), nil
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	hash, err := utils.HexToFelt(txHash)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction hash %q: %w", txHash, err)
	}

	var receipt *rpc.TransactionReceiptWithBlockInfo
	err = c.call(ctx, "starknet_getTransactionReceipt", func(ctx context.Context) error {
		res, err := c.provider.TransactionReceipt(ctx, hash)
		receipt = res
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Receipt{
		TxHash:          txHash,
		ExecutionStatus: string(receipt.ExecutionStatus),
		FinalityStatus:  string(receipt.FinalityStatus),
		RevertReason:    receipt.RevertReason,
	}, nil
}

func feltsToInts(fs []*felt.Felt) []*big.Int {
	words := make([]*big.Int, 0, len(fs))
	for _, f := range fs {
		if f == nil {
			words = append(words, new(big.Int))
			continue
		}
		words = append(words, utils.FeltToBigInt(f))
	}
	return words
}

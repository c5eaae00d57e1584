package starknet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"wave-portal/internal/infra/retry"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unknownTx = "0x1234"

// rpcNode answers JSON-RPC requests; receipts go through receipt, the rest get fixed answers
func rpcNode(t *testing.T, receipt func(w http.ResponseWriter, id json.RawMessage)) (*httptest.Server, *int32) {
	t.Helper()
	var receipts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "starknet_getTransactionReceipt":
			atomic.AddInt32(&receipts, 1)
			receipt(w, req.ID)
		case "starknet_specVersion":
			json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0.8.1"})
		case "starknet_blockNumber":
			json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 1410600})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]interface{}{"code": -32601, "message": "Method not found"}})
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &receipts
}

func TestUnknownTransactionDoesNotOpenBreaker(t *testing.T) {
	srv, receipts := rpcNode(t, func(w http.ResponseWriter, id json.RawMessage) {
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": id,
			"error": map[string]interface{}{"code": 29, "message": "Transaction hash not found"}})
	})
	client, err := NewClient(srv.URL, 5*time.Second)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := client.TransactionReceipt(ctx, unknownTx)
		require.Error(t, err)
		assert.True(t, IsApplicationError(err))
		assert.False(t, retry.IsRetryable(err))
		assert.False(t, errors.Is(err, gobreaker.ErrOpenState))
	}
	assert.Equal(t, int32(10), atomic.LoadInt32(receipts))

	head, err := client.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1410600), head)
}

func TestTransportFailuresOpenBreaker(t *testing.T) {
	srv, receipts := rpcNode(t, func(w http.ResponseWriter, id json.RawMessage) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	client, err := NewClient(srv.URL, 5*time.Second)
	require.NoError(t, err)

	ctx := context.Background()
	var last error
	for i := 0; i < 10; i++ {
		_, last = client.TransactionReceipt(ctx, unknownTx)
		require.Error(t, last)
		assert.False(t, IsApplicationError(last))
		assert.True(t, retry.IsRetryable(last))
	}
	assert.Equal(t, int32(6), atomic.LoadInt32(receipts))
	assert.True(t, errors.Is(last, gobreaker.ErrOpenState))
}

func TestReceiptFinality(t *testing.T) {
	cases := []struct {
		name      string
		receipt   *Receipt
		requireL1 bool
		succeeded bool
		final     bool
	}{
		{"nil", nil, false, false, false},
		{"received", &Receipt{FinalityStatus: "RECEIVED"}, false, false, false},
		{"pre confirmed", &Receipt{ExecutionStatus: ExecutionSucceeded, FinalityStatus: "PRE_CONFIRMED"}, false, true, false},
		{"accepted on l2", &Receipt{ExecutionStatus: ExecutionSucceeded, FinalityStatus: FinalityAcceptedL2}, false, true, true},
		{"accepted on l2 needs l1", &Receipt{ExecutionStatus: ExecutionSucceeded, FinalityStatus: FinalityAcceptedL2}, true, true, false},
		{"accepted on l1", &Receipt{ExecutionStatus: ExecutionSucceeded, FinalityStatus: FinalityAcceptedL1}, true, true, true},
		{"reverted", &Receipt{ExecutionStatus: ExecutionReverted, FinalityStatus: FinalityAcceptedL2}, false, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.succeeded, tc.receipt.Succeeded())
			assert.Equal(t, tc.final, tc.receipt.Final(tc.requireL1))
		})
	}
}

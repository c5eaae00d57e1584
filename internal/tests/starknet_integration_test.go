//go:build integration

package tests

import (
	"context"
	"os"
	"testing"
	"time"

	"wave-portal/internal/clients_api/starknet"
	"wave-portal/internal/features/waves"
	"wave-portal/internal/infra/config"
	"wave-portal/internal/infra/retry"
)

func rpcURL() string {
	if u := os.Getenv("STARKNET_RPC_URL"); u != "" {
		return u
	}
	return config.DefaultRPCURL
}

func newReader(t *testing.T) *waves.Reader {
	t.Helper()
	client, err := starknet.NewClient(rpcURL(), 30*time.Second)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return waves.NewReader(client, waves.Options{
		ContractAddress: config.DefaultContractAddress,
		EventKey:        config.DefaultEventKey,
		FromBlock:       config.DefaultFromBlock,
		Retry:           retry.Options{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
	})
}

func TestIntegration_Starknet_FetchRecentWaves(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	list, err := newReader(t).FetchRecentWaves(ctx)
	if err != nil {
		t.Fatalf("FetchRecentWaves failed: %v", err)
	}
	for i := 1; i < len(list); i++ {
		if list[i].BlockNumber > list[i-1].BlockNumber {
			t.Fatalf("waves not most recent first at %d: block %d after %d", i, list[i].BlockNumber, list[i-1].BlockNumber)
		}
	}
}

func TestIntegration_Starknet_TotalFromContract(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	total, err := newReader(t).TotalFromContract(ctx)
	if err != nil {
		t.Fatalf("TotalFromContract failed: %v", err)
	}
	if total.Sign() < 0 {
		t.Fatalf("expected non-negative total, got %s", total)
	}
}

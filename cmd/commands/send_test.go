package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"wave-portal/internal/features/writer"
	"wave-portal/internal/infra/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInput(t *testing.T) {
	assert.NoError(t, checkInput("gm", "", false))
	assert.NoError(t, checkInput("gm", "1234", true))

	err := checkInput(" ", "", true)
	require.True(t, writer.IsValidationError(err))
	assert.Equal(t, "Please provide message, PIN", writer.UserMessage(err))
	assert.Equal(t, "Please provide PIN", writer.UserMessage(checkInput("gm", "", true)))
}

// offlineConfig points every remote at a server that counts hits
func offlineConfig(t *testing.T) *int32 {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{
		Starknet: config.StarknetConfig{RPCURL: srv.URL, ContractAddress: config.DefaultContractAddress},
		Writer:   config.WriterConfig{Strategy: writer.StrategyCustodial},
		Signer:   config.SignerConfig{BaseURL: srv.URL, APIKey: "key"},
		Identity: config.IdentityConfig{BaseURL: srv.URL, SecretKey: "sk", SessionID: "sess_1"},
		Poller:   config.PollerConfig{MaxAttempts: 1, Interval: 1},
	}
	return &hits
}

func TestRunSendValidatesBeforeNetwork(t *testing.T) {
	hits := offlineConfig(t)
	sendCmd.SetContext(context.Background())

	err := runSend(sendCmd, []string{"  "})
	require.Error(t, err)
	assert.Equal(t, "Please provide message", err.Error())

	// empty PIN from a non-terminal stdin
	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString("\n")
	require.NoError(t, err)
	w.Close()
	stdin := os.Stdin
	os.Stdin = r
	t.Cleanup(func() { os.Stdin = stdin })

	err = runSend(sendCmd, []string{"gm"})
	require.Error(t, err)
	assert.Equal(t, "Please provide PIN", err.Error())

	assert.Zero(t, atomic.LoadInt32(hits))
}

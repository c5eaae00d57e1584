package chipi

// Client for the hosted custodial signer.
// The service decrypts the user's key with the PIN, signs and submits the calls.
// One request per user action, never retried: a retry could submit the same calls twice.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wave-portal/internal/infra/httpclient"
	"wave-portal/internal/infra/log"
	"wave-portal/internal/infra/retry"

	"go.uber.org/zap"
)

// WalletData - the custodial wallet reference stored with the user profile
type WalletData struct {
	PublicKey           string `json:"publicKey"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
}

type Call struct {
	ContractAddress string   `json:"contractAddress"`
	Entrypoint      string   `json:"entrypoint"`
	Calldata        []string `json:"calldata"`
}

// CallAnyContractParams - request body of the call-any-contract endpoint
type CallAnyContractParams struct {
	EncryptKey string     `json:"encryptKey"`
	Wallet     WalletData `json:"wallet"`
	Calls      []Call     `json:"calls"`
	Network    string     `json:"network,omitempty"`
	MaxFee     string     `json:"maxFee,omitempty"`
	Nonce      string     `json:"nonce,omitempty"`
}

type CallResult struct {
	TransactionHash string `json:"transactionHash"`
}

type Options struct {
	BaseURL         string
	CallPath        string
	APIKey          string
	Network         string
	Timeout         time.Duration
	MaxResponseSize int64
	HTTPClient      *http.Client
}

type Client struct {
	http     *httpclient.Client
	callPath string
	network  string
}

func NewClient(opts Options) *Client {
	if opts.CallPath == "" {
		opts.CallPath = "/transactions/call-any-contract"
	}
	return &Client{
		http: httpclient.New(httpclient.Options{
			Name:            "ChipiSigner",
			BaseURL:         opts.BaseURL,
			Timeout:         opts.Timeout,
			MaxResponseSize: opts.MaxResponseSize,
			RatePerSecond:   5,
			Burst:           5,
			Headers:         map[string]string{"x-api-key": opts.APIKey},
			HTTPClient:      opts.HTTPClient,
		}),
		callPath: opts.CallPath,
		network:  opts.Network,
	}
}

// CallAnyContract signs and submits params.Calls with the user's custodial wallet
func (c *Client) CallAnyContract(ctx context.Context, bearerToken string, params CallAnyContractParams) (*CallResult, error) {
	if params.Network == "" {
		params.Network = c.network
	}

	startTime := time.Now()
	var raw struct {
		TransactionHash string `json:"transactionHash"`
		TxHash          string `json:"txHash"`
		Hash            string `json:"transaction_hash"`
	}
	err := c.http.DoJSON(ctx, httpclient.Request{
		Method:   http.MethodPost,
		Endpoint: c.callPath,
		Body:     params,
		Headers:  map[string]string{"Authorization": "Bearer " + bearerToken},
	}, &raw)
	duration := time.Since(startTime).Milliseconds()

	if err != nil {
		var he *retry.HTTPError
		if errors.As(err, &he) {
			apiErr := newAPIError(he.StatusCode, he.Body)
			log.LogError("Signer rejected calls",
				zap.Int("status", apiErr.StatusCode),
				zap.String("kind", string(apiErr.Kind)),
				zap.Any("embedded", apiErr.Embedded),
				zap.Int64("duration_ms", duration))
			return nil, apiErr
		}
		log.LogError("Signer request failed", zap.Error(err), zap.Int64("duration_ms", duration))
		return nil, fmt.Errorf("failed to call signer: %w", err)
	}

	hash := raw.TransactionHash
	if hash == "" {
		hash = raw.TxHash
	}
	if hash == "" {
		hash = raw.Hash
	}
	if hash == "" {
		return nil, fmt.Errorf("signer response has no transaction hash")
	}

	log.LogSuccess("Calls submitted", zap.String("txHash", hash), zap.Int("calls", len(params.Calls)), zap.Int64("duration_ms", duration))
	return &CallResult{TransactionHash: hash}, nil
}

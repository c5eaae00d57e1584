package writer

// Submits wave(message) to the portal contract.
// Two strategies, picked once from config: the hosted custodial signer or a local account.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wave-portal/internal/clients_api/chipi"
	"wave-portal/internal/features/codec"
	"wave-portal/internal/infra/log"

	"github.com/NethermindEth/juno/core/felt"
	"go.uber.org/zap"
)

const Entrypoint = "wave"

const (
	StrategyCustodial = "custodial"
	StrategyDirect    = "direct"
)

var ErrSignerUnavailable = errors.New("signer is not configured")

// ValidationError - request rejected before any network call
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing " + strings.Join(e.Missing, ", ")
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// WalletReference - custodial wallet stored with the user's profile
type WalletReference struct {
	PublicKey           string
	EncryptedPrivateKey string
}

type WaveRequest struct {
	Message     string
	PIN         string
	Wallet      *WalletReference
	BearerToken string
}

// TxHandle - the submitted transaction
type TxHandle struct {
	Hash        string    `json:"hash"`
	Strategy    string    `json:"strategy"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Writer interface {
	SendWave(ctx context.Context, req WaveRequest) (TxHandle, error)
}

// Signer - the hosted signer's call-any-contract operation
type Signer interface {
	CallAnyContract(ctx context.Context, bearerToken string, params chipi.CallAnyContractParams) (*chipi.CallResult, error)
}

// Invoker - a local account able to submit INVOKE transactions
type Invoker interface {
	Address() string
	Invoke(ctx context.Context, contract, entrypoint string, calldata []*felt.Felt) (string, error)
}

// Custodial signs through the hosted signer with the user's PIN and wallet
type Custodial struct {
	signer   Signer
	contract string
}

// NewCustodial - signer may be nil, SendWave then fails with ErrSignerUnavailable
func NewCustodial(signer Signer, contractAddress string) *Custodial {
	return &Custodial{signer: signer, contract: contractAddress}
}

// Validate checks a custodial request. Callers that need network calls to finish
// the request (bearer token) run it first.
func Validate(req WaveRequest) error {
	var missing []string
	if strings.TrimSpace(req.Message) == "" {
		missing = append(missing, "message")
	}
	if req.PIN == "" {
		missing = append(missing, "PIN")
	}
	if req.Wallet == nil || req.Wallet.PublicKey == "" || req.Wallet.EncryptedPrivateKey == "" {
		missing = append(missing, "wallet")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

func (c *Custodial) SendWave(ctx context.Context, req WaveRequest) (TxHandle, error) {
	if err := Validate(req); err != nil {
		return TxHandle{}, err
	}
	if c.signer == nil {
		return TxHandle{}, ErrSignerUnavailable
	}

	res, err := c.signer.CallAnyContract(ctx, req.BearerToken, chipi.CallAnyContractParams{
		EncryptKey: req.PIN,
		Wallet: chipi.WalletData{
			PublicKey:           req.Wallet.PublicKey,
			EncryptedPrivateKey: req.Wallet.EncryptedPrivateKey,
		},
		Calls: []chipi.Call{{
			ContractAddress: c.contract,
			Entrypoint:      Entrypoint,
			Calldata:        codec.EncodeCalldata(req.Message),
		}},
	})
	if err != nil {
		return TxHandle{}, fmt.Errorf("failed to send wave: %w", err)
	}

	log.LogSuccess("Wave submitted", zap.String("txHash", res.TransactionHash), zap.String("strategy", StrategyCustodial))
	return TxHandle{Hash: res.TransactionHash, Strategy: StrategyCustodial, SubmittedAt: time.Now()}, nil
}

// Direct signs with a locally configured account. PIN and wallet are not used.
type Direct struct {
	account  Invoker
	contract string
}

func NewDirect(account Invoker, contractAddress string) *Direct {
	return &Direct{account: account, contract: contractAddress}
}

func (d *Direct) SendWave(ctx context.Context, req WaveRequest) (TxHandle, error) {
	if strings.TrimSpace(req.Message) == "" {
		return TxHandle{}, &ValidationError{Missing: []string{"message"}}
	}
	if d.account == nil {
		return TxHandle{}, ErrSignerUnavailable
	}

	hash, err := d.account.Invoke(ctx, d.contract, Entrypoint, codec.EncodeFelts(req.Message))
	if err != nil {
		return TxHandle{}, fmt.Errorf("failed to send wave: %w", err)
	}

	log.LogSuccess("Wave submitted",
		zap.String("txHash", hash),
		zap.String("strategy", StrategyDirect),
		zap.String("account", d.account.Address()))
	return TxHandle{Hash: hash, Strategy: StrategyDirect, SubmittedAt: time.Now()}, nil
}

// UserMessage - the text shown to the user for a failed send
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "Please provide " + strings.Join(ve.Missing, ", ")
	}
	if errors.Is(err, ErrSignerUnavailable) {
		return "Sending is not available: signer is not configured"
	}
	var apiErr *chipi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out, please try again"
	}
	return "Failed to send wave: " + err.Error()
}

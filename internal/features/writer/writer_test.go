package writer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"wave-portal/internal/clients_api/chipi"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	calls  int
	last   chipi.CallAnyContractParams
	bearer string
	err    error
}

func (f *fakeSigner) CallAnyContract(_ context.Context, bearerToken string, params chipi.CallAnyContractParams) (*chipi.CallResult, error) {
	f.calls++
	f.last = params
	f.bearer = bearerToken
	if f.err != nil {
		return nil, f.err
	}
	return &chipi.CallResult{TransactionHash: "0xabc"}, nil
}

type fakeAccount struct {
	calls    int
	calldata []*felt.Felt
}

func (f *fakeAccount) Address() string { return "0x1" }

func (f *fakeAccount) Invoke(_ context.Context, contract, entrypoint string, calldata []*felt.Felt) (string, error) {
	f.calls++
	f.calldata = calldata
	return "0xdef", nil
}

func TestCustodialValidationShortCircuits(t *testing.T) {
	wallet := &WalletReference{PublicKey: "0xpub", EncryptedPrivateKey: "enc"}

	// every combination with at least one of message, PIN, wallet missing
	for mask := 0; mask < 7; mask++ {
		req := WaveRequest{BearerToken: "jwt"}
		if mask&1 != 0 {
			req.Message = "hi"
		}
		if mask&2 != 0 {
			req.PIN = "1234"
		}
		if mask&4 != 0 {
			req.Wallet = wallet
		}

		t.Run(fmt.Sprintf("mask=%03b", mask), func(t *testing.T) {
			signer := &fakeSigner{}
			_, err := NewCustodial(signer, "0xportal").SendWave(context.Background(), req)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, 0, signer.calls)
		})
	}
}

func TestCustodialRejectsPartialWallet(t *testing.T) {
	signer := &fakeSigner{}
	_, err := NewCustodial(signer, "0xportal").SendWave(context.Background(), WaveRequest{
		Message: "hi", PIN: "1234", Wallet: &WalletReference{PublicKey: "0xpub"},
	})
	assert.True(t, IsValidationError(err))
	assert.Equal(t, 0, signer.calls)
}

func TestCustodialSendsWaveCall(t *testing.T) {
	signer := &fakeSigner{}
	handle, err := NewCustodial(signer, "0xportal").SendWave(context.Background(), WaveRequest{
		Message:     "hi",
		PIN:         "1234",
		Wallet:      &WalletReference{PublicKey: "0xpub", EncryptedPrivateKey: "enc"},
		BearerToken: "jwt",
	})

	require.NoError(t, err)
	assert.Equal(t, "0xabc", handle.Hash)
	assert.Equal(t, StrategyCustodial, handle.Strategy)
	assert.Equal(t, 1, signer.calls)
	assert.Equal(t, "jwt", signer.bearer)
	assert.Equal(t, "1234", signer.last.EncryptKey)
	assert.Equal(t, chipi.WalletData{PublicKey: "0xpub", EncryptedPrivateKey: "enc"}, signer.last.Wallet)
	require.Len(t, signer.last.Calls, 1)
	assert.Equal(t, chipi.Call{ContractAddress: "0xportal", Entrypoint: "wave", Calldata: []string{"2", "104", "105"}}, signer.last.Calls[0])
}

func TestCustodialWithoutSigner(t *testing.T) {
	_, err := NewCustodial(nil, "0xportal").SendWave(context.Background(), WaveRequest{
		Message: "hi", PIN: "1234", Wallet: &WalletReference{PublicKey: "0xpub", EncryptedPrivateKey: "enc"},
	})
	assert.ErrorIs(t, err, ErrSignerUnavailable)
}

func TestCustodialPropagatesSignerError(t *testing.T) {
	apiErr := &chipi.APIError{StatusCode: 400, Kind: chipi.KindPaymaster}
	signer := &fakeSigner{err: apiErr}
	_, err := NewCustodial(signer, "0xportal").SendWave(context.Background(), WaveRequest{
		Message: "hi", PIN: "1234", Wallet: &WalletReference{PublicKey: "0xpub", EncryptedPrivateKey: "enc"},
	})

	var got *chipi.APIError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, apiErr.UserMessage(), UserMessage(err))
}

func TestDirectSendsFelts(t *testing.T) {
	acc := &fakeAccount{}
	handle, err := NewDirect(acc, "0xportal").SendWave(context.Background(), WaveRequest{Message: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "0xdef", handle.Hash)
	assert.Equal(t, StrategyDirect, handle.Strategy)
	require.Len(t, acc.calldata, 3)
	assert.Equal(t, new(felt.Felt).SetUint64(2), acc.calldata[0])
	assert.Equal(t, new(felt.Felt).SetUint64(104), acc.calldata[1])

	_, err = NewDirect(acc, "0xportal").SendWave(context.Background(), WaveRequest{})
	assert.True(t, IsValidationError(err))
	assert.Equal(t, 1, acc.calls)

	_, err = NewDirect(nil, "0xportal").SendWave(context.Background(), WaveRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrSignerUnavailable)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Please provide message, PIN", UserMessage(&ValidationError{Missing: []string{"message", "PIN"}}))
	assert.Contains(t, UserMessage(ErrSignerUnavailable), "not configured")
	assert.Contains(t, UserMessage(fmt.Errorf("failed: %w", context.DeadlineExceeded)), "timed out")
}

package chipi

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallAnyContractRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/call-any-contract", r.URL.Path)
		assert.Equal(t, "pk_live", r.Header.Get("x-api-key"))
		assert.Equal(t, "Bearer user-jwt", r.Header.Get("Authorization"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1234", body["encryptKey"])
		assert.Equal(t, map[string]interface{}{"publicKey": "0xabc", "encryptedPrivateKey": "enc"}, body["wallet"])
		assert.Equal(t, []interface{}{map[string]interface{}{
			"contractAddress": "0xportal",
			"entrypoint":      "wave",
			"calldata":        []interface{}{"2", "104", "105"},
		}}, body["calls"])
		assert.Equal(t, "mainnet", body["network"])
		_, hasNonce := body["nonce"]
		assert.False(t, hasNonce)

		w.Write([]byte(`{"transactionHash":"0xfeed"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "pk_live", Network: "mainnet"})
	res, err := c.CallAnyContract(context.Background(), "user-jwt", CallAnyContractParams{
		EncryptKey: "1234",
		Wallet:     WalletData{PublicKey: "0xabc", EncryptedPrivateKey: "enc"},
		Calls:      []Call{{ContractAddress: "0xportal", Entrypoint: "wave", Calldata: []string{"2", "104", "105"}}},
	})

	require.NoError(t, err)
	assert.Equal(t, "0xfeed", res.TransactionHash)
}

func TestCallAnyContractClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"paymaster multicall", 400, `{"message":"execution failed: argent/multicall-failed"}`, KindPaymaster},
		{"paymaster overflow", 500, `Error: u256_sub Overflow`, KindPaymaster},
		{"embedded backend", 400, `Request failed: {"statusCode":500,"message":"Internal server error"}`, KindBackend},
		{"bad request", 400, `{"statusCode":400,"message":["calls must be an array"]}`, KindRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(Options{BaseURL: srv.URL}).CallAnyContract(context.Background(), "jwt", CallAnyContractParams{})

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.kind, apiErr.Kind)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.NotEmpty(t, apiErr.UserMessage())
			// no retries on the write path
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestCallAnyContractMissingHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL}).CallAnyContract(context.Background(), "jwt", CallAnyContractParams{})
	require.Error(t, err)
}

func TestExtractEmbeddedJSON(t *testing.T) {
	obj, ok := ExtractEmbeddedJSON(`Error: API error (500): {"statusCode":500,"message":"wallet {locked}"} trailing`)
	require.True(t, ok)
	assert.Equal(t, float64(500), obj["statusCode"])
	assert.Equal(t, "wallet {locked}", obj["message"])

	obj, ok = ExtractEmbeddedJSON(`prefix {not json} then {"error":"x"}`)
	require.True(t, ok)
	assert.Equal(t, "x", obj["error"])

	_, ok = ExtractEmbeddedJSON("plain text")
	assert.False(t, ok)
	_, ok = ExtractEmbeddedJSON(`{"unterminated":`)
	assert.False(t, ok)
}

func TestUserMessageUsesEmbeddedMessage(t *testing.T) {
	e := newAPIError(400, []byte(`{"statusCode":500,"message":"Wallet not found"}`))
	assert.Equal(t, KindBackend, e.Kind)
	assert.Equal(t, "Signing service error: Wallet not found", e.UserMessage())

	e = newAPIError(422, []byte(`{"message":["amount too small","bad nonce"]}`))
	assert.Equal(t, "Request rejected: amount too small; bad nonce", e.UserMessage())
}

func TestParseAmount(t *testing.T) {
	n, err := ParseAmount("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, "1500000", n.String())

	n, err = ParseAmount(".25", 2)
	require.NoError(t, err)
	assert.Equal(t, "25", n.String())

	n, err = ParseAmount("10", 0)
	require.NoError(t, err)
	assert.Equal(t, "10", n.String())

	for _, bad := range []string{"", "0", "-1", "1.2345678", "abc", "1.2.3"} {
		_, err := ParseAmount(bad, 6)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestTransferCallSplitsU256(t *testing.T) {
	amount := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(3), 128), big.NewInt(7))
	call, err := TransferCall("0xtoken", "0x0ABC", amount)
	require.NoError(t, err)
	assert.Equal(t, "transfer", call.Entrypoint)
	assert.Equal(t, []string{"0xabc", "7", "3"}, call.Calldata)

	_, err = TransferCall("0xtoken", "nope", amount)
	assert.Error(t, err)
}

func TestTransferSubmitsOneCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body CallAnyContractParams
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Calls, 1)
		assert.Equal(t, "0xusdc", body.Calls[0].ContractAddress)
		assert.Equal(t, []string{"0x1", "2500000", "0"}, body.Calls[0].Calldata)
		w.Write([]byte(`{"txHash":"0x99"}`))
	}))
	defer srv.Close()

	res, err := NewClient(Options{BaseURL: srv.URL}).Transfer(context.Background(), "jwt", TransferParams{
		EncryptKey:   "1234",
		TokenAddress: "0xusdc",
		Recipient:    "0x1",
		Amount:       "2.5",
		Decimals:     6,
	})
	require.NoError(t, err)
	assert.Equal(t, "0x99", res.TransactionHash)
}

package chipi

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")

// TransferParams - ERC-20 transfer from the custodial wallet
type TransferParams struct {
	EncryptKey   string
	Wallet       WalletData
	TokenAddress string
	Recipient    string
	Amount       string // decimal, "1.5"
	Decimals     int
}

var u128 = new(big.Int).Lsh(big.NewInt(1), 128)

// ParseAmount turns a decimal string into base units, "1.5" with 6 decimals -> 1500000
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" || decimals < 0 {
		return nil, ErrInvalidAmount
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if len(frac) > decimals {
		return nil, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	for _, c := range digits {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
		}
	}

	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if n.Cmp(new(big.Int).Lsh(big.NewInt(1), 256)) >= 0 {
		return nil, fmt.Errorf("%w: does not fit in u256", ErrInvalidAmount)
	}
	return n, nil
}

// SplitU256 - (low, high) 128-bit limbs
func SplitU256(n *big.Int) (*big.Int, *big.Int) {
	low := new(big.Int).Mod(n, u128)
	high := new(big.Int).Rsh(n, 128)
	return low, high
}

// TransferCall builds transfer(recipient, amount: u256)
func TransferCall(tokenAddress, recipient string, amount *big.Int) (Call, error) {
	hex := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(recipient), "0x"), "0X")
	to, ok := new(big.Int).SetString(hex, 16)
	if !ok || to.Sign() <= 0 {
		return Call{}, fmt.Errorf("invalid recipient %q", recipient)
	}
	low, high := SplitU256(amount)
	return Call{
		ContractAddress: tokenAddress,
		Entrypoint:      "transfer",
		Calldata:        []string{"0x" + to.Text(16), low.String(), high.String()},
	}, nil
}

// Transfer sends Amount of TokenAddress to Recipient
func (c *Client) Transfer(ctx context.Context, bearerToken string, p TransferParams) (*CallResult, error) {
	amount, err := ParseAmount(p.Amount, p.Decimals)
	if err != nil {
		return nil, err
	}
	call, err := TransferCall(p.TokenAddress, p.Recipient, amount)
	if err != nil {
		return nil, err
	}
	return c.CallAnyContract(ctx, bearerToken, CallAnyContractParams{
		EncryptKey: p.EncryptKey,
		Wallet:     p.Wallet,
		Calls:      []Call{call},
	})
}

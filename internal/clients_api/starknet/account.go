package starknet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/account"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
)

// Account - a locally held key that signs and submits INVOKE transactions
type Account struct {
	client  *Client
	account *account.Account
	address string
}

// NewAccount loads the key into an in-memory keystore
func (c *Client) NewAccount(address, publicKey, privateKeyHex string) (*Account, error) {
	addr, err := utils.HexToFelt(address)
	if err != nil {
		return nil, fmt.Errorf("invalid account address: %w", err)
	}

	priv, ok := new(big.Int).SetString(strings.TrimPrefix(strings.TrimPrefix(privateKeyHex, "0x"), "0X"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid account private key")
	}

	ks := account.NewMemKeystore()
	ks.Put(publicKey, priv)

	acct, err := account.NewAccount(c.provider, addr, publicKey, ks, account.CairoV2)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return &Account{client: c, account: acct, address: address}, nil
}

func (a *Account) Address() string { return a.address }

// Invoke submits one call and returns the transaction hash once the node accepted it
func (a *Account) Invoke(ctx context.Context, contract, entrypoint string, calldata []*felt.Felt) (string, error) {
	to, err := utils.HexToFelt(contract)
	if err != nil {
		return "", fmt.Errorf("invalid contract address %q: %w", contract, err)
	}

	invoke := rpc.InvokeFunctionCall{
		ContractAddress: to,
		FunctionName:    entrypoint,
		CallData:        calldata,
	}

	var txHash string
	err = a.client.call(ctx, "starknet_addInvokeTransaction:"+entrypoint, func(ctx context.Context) error {
		resp, err := a.account.BuildAndSendInvokeTxn(ctx, []rpc.InvokeFunctionCall{invoke}, nil)
		if err != nil {
			return err
		}
		txHash = resp.Hash.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return txHash, nil
}

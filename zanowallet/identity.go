// Copyright (c) 2025 Dmitry Vats

package zanowallet

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// Identity is the signed wallet identity used for platform authentication.
// Message is a random nonce and Signature is the wallet's signature over it.
type Identity struct {
	Address   string
	Alias     string
	Message   string
	Signature string
}

type getAddressResult struct {
	Address string `json:"address"`
}

type aliasInfo struct {
	Alias string `json:"alias"`
}

type getAliasResult struct {
	Status        string      `json:"status"`
	AliasInfoList []aliasInfo `json:"alias_info_list"`
}

type signMessageParams struct {
	Buff string `json:"buff"`
}

type signMessageResult struct {
	Signature string `json:"sig"`
}

// Identity fetches the wallet address and alias and signs a fresh nonce.
// Returns ErrNoAlias if the wallet address has no registered alias.
func (c *Client) Identity(ctx context.Context) (*Identity, error) {
	var addr getAddressResult
	if err := c.call(ctx, "getaddress", nil, &addr); err != nil {
		return nil, err
	}
	if len(addr.Address) == 0 {
		return nil, fmt.Errorf("wallet returned an empty address")
	}

	var alias getAliasResult
	if err := c.call(ctx, "get_alias_by_address", addr.Address, &alias); err != nil {
		return nil, err
	}
	if alias.Status != "OK" || len(alias.AliasInfoList) == 0 || len(alias.AliasInfoList[0].Alias) == 0 {
		return nil, fmt.Errorf("address %s: %w", addr.Address, ErrNoAlias)
	}

	message := uuid.New().String()
	var sig signMessageResult
	params := &signMessageParams{
		Buff: base64.StdEncoding.EncodeToString([]byte(message)),
	}
	if err := c.call(ctx, "sign_message", params, &sig); err != nil {
		return nil, err
	}
	if len(sig.Signature) == 0 {
		return nil, fmt.Errorf("wallet returned an empty signature")
	}

	return &Identity{
		Address:   addr.Address,
		Alias:     alias.AliasInfoList[0].Alias,
		Message:   message,
		Signature: sig.Signature,
	}, nil
}

// Copyright (c) 2025 Dmitry Vats

package zanowallet

import (
	"context"
	"fmt"
)

// SwapLeg is one asset movement inside an ionic swap proposal. Amount is in
// atomic units of the asset.
type SwapLeg struct {
	AssetID string `json:"asset_id"`
	Amount  uint64 `json:"amount"`
}

// ProposalInfo is the decoded form of a raw swap proposal. ToInitiator lists
// the legs paid to the proposal's initiator and ToFinalizer the legs paid to
// the party that accepts it.
type ProposalInfo struct {
	ToInitiator []SwapLeg `json:"to_initiator"`
	ToFinalizer []SwapLeg `json:"to_finalizer"`
}

// Leg returns the leg with the given asset id, or nil.
func Leg(legs []SwapLeg, assetID string) *SwapLeg {
	for i := range legs {
		if legs[i].AssetID == assetID {
			return &legs[i]
		}
	}
	return nil
}

// SwapParams describes the swap from the initiator's point of view:
// Receive legs are paid to the initiator and Send legs to the counterparty at
// DestinationAddress.
type SwapParams struct {
	Receive SwapLeg
	Send    SwapLeg

	DestinationAddress string
}

type generateProposalParams struct {
	Proposal           ProposalInfo `json:"proposal"`
	DestinationAddress string       `json:"destination_address"`
}

type generateProposalResult struct {
	HexRawProposal string `json:"hex_raw_proposal"`
}

// GenerateSwapProposal builds and signs a swap proposal for the two legs.
// Returns ErrInsufficientFunds (wrapped) if the wallet cannot fund the Send
// leg.
func (c *Client) GenerateSwapProposal(ctx context.Context, params *SwapParams) (string, error) {
	req := &generateProposalParams{
		Proposal: ProposalInfo{
			ToInitiator: []SwapLeg{params.Receive},
			ToFinalizer: []SwapLeg{params.Send},
		},
		DestinationAddress: params.DestinationAddress,
	}
	var res generateProposalResult
	if err := c.call(ctx, "ionic_swap_generate_proposal", req, &res); err != nil {
		return "", err
	}
	if len(res.HexRawProposal) == 0 {
		return "", fmt.Errorf("wallet returned an empty swap proposal")
	}
	return res.HexRawProposal, nil
}

type proposalInfoParams struct {
	HexRawProposal string `json:"hex_raw_proposal"`
}

type proposalInfoResult struct {
	Proposal ProposalInfo `json:"proposal"`
}

// DecodeSwapProposal decodes a raw proposal into its asset legs.
func (c *Client) DecodeSwapProposal(ctx context.Context, hexRaw string) (*ProposalInfo, error) {
	if len(hexRaw) == 0 {
		return nil, fmt.Errorf("swap proposal payload is empty")
	}
	var res proposalInfoResult
	if err := c.call(ctx, "ionic_swap_get_proposal_info", &proposalInfoParams{HexRawProposal: hexRaw}, &res); err != nil {
		return nil, err
	}
	return &res.Proposal, nil
}

type acceptProposalResult struct {
	ResultTxID string `json:"result_tx_id"`
}

// AcceptSwapProposal signs and broadcasts the finalizing half of a swap.
// Returns ErrInsufficientFunds (wrapped) if the wallet cannot fund its leg.
func (c *Client) AcceptSwapProposal(ctx context.Context, hexRaw string) error {
	var res acceptProposalResult
	return c.call(ctx, "ionic_swap_accept_proposal", &proposalInfoParams{HexRawProposal: hexRaw}, &res)
}

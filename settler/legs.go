// Copyright (c) 2025 Dmitry Vats

package settler

import (
	"context"
	"fmt"

	"github.com/dvats/zanobot/tradeapi"
	"github.com/dvats/zanobot/zanowallet"
	"github.com/shopspring/decimal"
)

// Legs is the pair of atomic-unit transfers expected from one settlement:
// the leg we receive from the counterparty and the leg we send them.
type Legs struct {
	Receive zanowallet.SwapLeg
	Send    zanowallet.SwapLeg
}

// computeLegs derives the swap legs for a matched counter-offer. The target
// amount is the smaller of the two open sides. A buying counterparty pays
// quote currency and takes base; a selling one does the reverse. The quote
// leg is scaled by the counter-offer price, never ours.
func (s *Settler) computeLegs(ctx context.Context, observed *tradeapi.Order, tip *tradeapi.ApplyTip) (*Legs, error) {
	target := decimal.Min(observed.Left, tip.Left)
	if target.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("target amount %s is not positive", target)
	}
	quoteAmount := target.Mul(tip.Price)

	base, err := s.wallet.AssetInfo(ctx, s.pair.FirstCurrency.AssetID)
	if err != nil {
		return nil, fmt.Errorf("could not resolve base asset: %w", err)
	}
	quote, err := s.wallet.AssetInfo(ctx, s.pair.SecondCurrency.AssetID)
	if err != nil {
		return nil, fmt.Errorf("could not resolve quote asset: %w", err)
	}

	var receiveAsset, sendAsset *zanowallet.Asset
	var receiveAmount, sendAmount decimal.Decimal
	switch tip.Type {
	case "buy":
		receiveAsset, receiveAmount = quote, quoteAmount
		sendAsset, sendAmount = base, target
	case "sell":
		receiveAsset, receiveAmount = base, target
		sendAsset, sendAmount = quote, quoteAmount
	default:
		return nil, fmt.Errorf("unexpected counter-offer side %q", tip.Type)
	}

	receive, err := receiveAsset.ToAtomic(receiveAmount)
	if err != nil {
		return nil, fmt.Errorf("could not convert receive amount: %w", err)
	}
	send, err := sendAsset.ToAtomic(sendAmount)
	if err != nil {
		return nil, fmt.Errorf("could not convert send amount: %w", err)
	}

	return &Legs{
		Receive: zanowallet.SwapLeg{AssetID: receiveAsset.AssetID, Amount: receive},
		Send:    zanowallet.SwapLeg{AssetID: sendAsset.AssetID, Amount: send},
	}, nil
}

// Validate checks a decoded counterparty proposal against the expected
// legs. The finalizer side of the proposal must pay us exactly the receive
// leg and the initiator side must take exactly the send leg; anything else
// rejects the proposal.
func (l *Legs) Validate(info *zanowallet.ProposalInfo) error {
	recv := zanowallet.Leg(info.ToFinalizer, l.Receive.AssetID)
	if recv == nil {
		return fmt.Errorf("proposal carries no incoming leg for asset %s", l.Receive.AssetID)
	}
	if recv.Amount != l.Receive.Amount {
		return fmt.Errorf("proposal incoming amount %d does not match expected %d", recv.Amount, l.Receive.Amount)
	}

	send := zanowallet.Leg(info.ToInitiator, l.Send.AssetID)
	if send == nil {
		return fmt.Errorf("proposal carries no outgoing leg for asset %s", l.Send.AssetID)
	}
	if send.Amount != l.Send.Amount {
		return fmt.Errorf("proposal outgoing amount %d does not match expected %d", send.Amount, l.Send.Amount)
	}
	return nil
}

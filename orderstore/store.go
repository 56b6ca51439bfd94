// Copyright (c) 2025 Dmitry Vats

// Package orderstore is the durable repository of per-trade order records.
// Settlement idempotency depends on this store: the applied counter-offer id
// set and the remaining amount are read and written here inside read-write
// transactions, so a watcher restart in the middle of an update cannot lose a
// previously recorded settlement.
package orderstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/bvkgo/kv"
	"github.com/dvats/zanobot/config"
	"github.com/dvats/zanobot/gobs"
	"github.com/dvats/zanobot/kvutil"
	"github.com/shopspring/decimal"
)

const Keyspace = "/orders/"

type Store struct {
	db kv.Database
}

func New(db kv.Database) *Store {
	return &Store{db: db}
}

func recordKey(tradeID string) string {
	return path.Join(Keyspace, tradeID)
}

// Load returns the record for the given trade id. Returns os.ErrNotExist
// (wrapped) when no record exists.
func (s *Store) Load(ctx context.Context, tradeID string) (*gobs.OrderRecord, error) {
	v, err := kvutil.GetDB[gobs.OrderRecord](ctx, s.db, recordKey(tradeID))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Save writes the record, overwriting any previous value.
func (s *Store) Save(ctx context.Context, r *gobs.OrderRecord) error {
	if len(r.TradeID) == 0 {
		return os.ErrInvalid
	}
	return kvutil.SetDB(ctx, s.db, recordKey(r.TradeID), r)
}

// Delete removes the record for the given trade id.
func (s *Store) Delete(ctx context.Context, tradeID string) error {
	return kvutil.DeleteDB(ctx, s.db, recordKey(tradeID))
}

// SetRemaining updates the remaining amount of the record inside a read-write
// transaction. Remaining never increases; a larger value is ignored with a
// warning because it means the platform state ran ahead of ours.
func (s *Store) SetRemaining(ctx context.Context, tradeID string, remaining decimal.Decimal) error {
	update := func(ctx context.Context, rw kv.ReadWriter) error {
		r, err := kvutil.Get[gobs.OrderRecord](ctx, rw, recordKey(tradeID))
		if err != nil {
			return err
		}
		prev, err := decimal.NewFromString(r.Remaining)
		if err != nil {
			return fmt.Errorf("record %q has invalid remaining %q: %w", tradeID, r.Remaining, err)
		}
		if remaining.GreaterThan(prev) {
			slog.Warn("new remaining is larger than recorded; keeping the recorded value", "tradeID", tradeID, "recorded", prev, "new", remaining)
			return nil
		}
		r.Remaining = remaining.String()
		return kvutil.Set(ctx, rw, recordKey(tradeID), r)
	}
	return kv.WithReadWriter(ctx, s.db, update)
}

// AddApplied appends a settled counter-offer id to the record's applied set
// inside a read-write transaction. Adding an id twice is a no-op.
func (s *Store) AddApplied(ctx context.Context, tradeID string, offerID int64) error {
	update := func(ctx context.Context, rw kv.ReadWriter) error {
		r, err := kvutil.Get[gobs.OrderRecord](ctx, rw, recordKey(tradeID))
		if err != nil {
			return err
		}
		if r.HasApplied(offerID) {
			return nil
		}
		r.AppliedIDs = append(r.AppliedIDs, offerID)
		return kvutil.Set(ctx, rw, recordKey(tradeID), r)
	}
	return kv.WithReadWriter(ctx, s.db, update)
}

// List returns all records in key order.
func (s *Store) List(ctx context.Context) ([]*gobs.OrderRecord, error) {
	var records []*gobs.OrderRecord
	begin, end := kvutil.PathRange(Keyspace)
	collect := func(ctx context.Context, r kv.Reader, key string, v *gobs.OrderRecord) error {
		records = append(records, v)
		return nil
	}
	if err := kvutil.AscendDB(ctx, s.db, begin, end, collect); err != nil {
		return nil, err
	}
	return records, nil
}

// Reconcile deletes records that current configuration no longer supports: a
// trade id absent from the config, a pair or amount mismatch, or a price
// mismatch when prices are static. With livePrice true the configured price
// is feed-derived and price drift alone does not invalidate a record.
//
// Reconcile runs before any watcher is started.
func (s *Store) Reconcile(ctx context.Context, pairs []*config.Pair, livePrice bool) error {
	byTradeID := make(map[string]*config.Pair)
	for _, p := range pairs {
		if len(p.TradeID) != 0 {
			byTradeID[p.TradeID] = p
		}
	}

	records, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list order records: %w", err)
	}

	for _, r := range records {
		p, ok := byTradeID[r.TradeID]
		if !ok {
			slog.Info("deleting order record: trade id is not in the configuration", "tradeID", r.TradeID)
			if err := s.Delete(ctx, r.TradeID); err != nil {
				return err
			}
			continue
		}
		if drifted, reason := recordDrifted(r, p, livePrice); drifted {
			slog.Info("deleting order record: configuration mismatch", "tradeID", r.TradeID, "reason", reason)
			if err := s.Delete(ctx, r.TradeID); err != nil {
				return err
			}
			continue
		}
		slog.Info("found valid order record", "tradeID", r.TradeID, "pair", p.PairID, "remaining", r.Remaining)
	}
	return nil
}

func recordDrifted(r *gobs.OrderRecord, p *config.Pair, livePrice bool) (bool, string) {
	if r.PairID != p.PairID {
		return true, "pair id changed"
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil || !amount.Equal(p.Amount) {
		return true, "amount changed"
	}
	if !livePrice {
		price, err := decimal.NewFromString(r.Price)
		if err != nil || !price.Equal(p.Price) {
			return true, "price changed"
		}
	}
	if r.Side != p.Side {
		return true, "side changed"
	}
	return false, ""
}

// IsNotExist reports whether the error means the record does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// Copyright (c) 2025 Dmitry Vats

package subcmds

import (
	"fmt"

	"github.com/bvkgo/kv"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
)

// openDatabase opens the key-value store under the data directory. The
// returned close function must run before the process exits.
func openDatabase(dataDir string) (kv.Database, func(), error) {
	bopts := badger.DefaultOptions(dataDir)
	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open the database: %w", err)
	}
	db := kvbadger.New(bdb, isGoodKey)
	return db, func() { bdb.Close() }, nil
}

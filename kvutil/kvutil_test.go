// Copyright (c) 2025 Dmitry Vats

package kvutil

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
)

type item struct {
	Name  string
	Count int64
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	db := kvmemdb.New()

	if _, err := GetDB[item](ctx, db, "/items/a"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("GetDB of a missing key = %v, want not-exist", err)
	}

	if err := SetDB(ctx, db, "/items/a", &item{Name: "a", Count: 1}); err != nil {
		t.Fatal(err)
	}
	v, err := GetDB[item](ctx, db, "/items/a")
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "a" || v.Count != 1 {
		t.Fatalf("GetDB = %+v", v)
	}

	if err := DeleteDB(ctx, db, "/items/a"); err != nil {
		t.Fatal(err)
	}
	if _, err := GetDB[item](ctx, db, "/items/a"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("GetDB after delete = %v, want not-exist", err)
	}
}

func TestAscendDB(t *testing.T) {
	ctx := context.Background()
	db := kvmemdb.New()

	for _, name := range []string{"c", "a", "b"} {
		if err := SetDB(ctx, db, "/items/"+name, &item{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	// A key outside the range must not be visited.
	if err := SetDB(ctx, db, "/others/x", &item{Name: "x"}); err != nil {
		t.Fatal(err)
	}

	var names []string
	begin, end := PathRange("/items/")
	collect := func(ctx context.Context, r kv.Reader, key string, v *item) error {
		names = append(names, v.Name)
		return nil
	}
	if err := AscendDB(ctx, db, begin, end, collect); err != nil {
		t.Fatal(err)
	}

	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("visited %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("visited %v, want %v", names, want)
		}
	}
}

func TestPathRange(t *testing.T) {
	begin, end := PathRange("/orders/")
	if begin != "/orders/" || end != "/orders0" {
		t.Fatalf("PathRange = %q, %q", begin, end)
	}
}

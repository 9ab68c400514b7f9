package hashmap

import (
	"context"
	"errors"
	"testing"

	"github.com/object-layer/object-layer/query"
	"github.com/object-layer/object-layer/record"
	"github.com/object-layer/object-layer/store/engine"
)

func makeRecord(t *testing.T, key, name string) *record.Record {
	t.Helper()
	r, err := record.New([]string{"Person"}, "Person", key, map[string]interface{}{
		"id":   key,
		"name": name,
	})
	if err != nil {
		t.Fatal(err)
	}
	r.Meta().Update()
	return r
}

func TestHashMapCRUD(t *testing.T) {
	t.Parallel()

	eng, err := NewHashMap("test", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := eng.Get("Person/p-1"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	r := makeRecord(t, "p-1", "Anna")
	if _, err := eng.Put(r); err != nil {
		t.Fatal(err)
	}

	got, err := eng.Get("Person/p-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Key() != "p-1" {
		t.Fatalf("unexpected key: %s", got.Key())
	}

	if err := eng.Delete("Person/p-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Get("Person/p-1"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestHashMapQueryAndCount(t *testing.T) {
	t.Parallel()

	eng, err := NewHashMap("test", "")
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range []struct{ key, name string }{
		{"p-1", "Anna"}, {"p-2", "Ben"}, {"p-3", "Anna"},
	} {
		if _, err := eng.Put(makeRecord(t, p.key, p.name)); err != nil {
			t.Fatal(err)
		}
	}

	q := query.New("Person").Where(query.Eq("name", "Anna")).MustBeValid()
	it, err := eng.Query(q)
	if err != nil {
		t.Fatal(err)
	}
	records, err := it.Collect(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(records))
	}

	hm := eng.(*HashMap)
	n, err := hm.Count(q)
	if err != nil || n != 2 {
		t.Fatalf("count: %d / %v", n, err)
	}

	purged, err := hm.Purge(context.Background(), q)
	if err != nil || purged != 2 {
		t.Fatalf("purge: %d / %v", purged, err)
	}
	n, err = hm.Count(query.New("Person").MustBeValid())
	if err != nil || n != 1 {
		t.Fatalf("count after purge: %d / %v", n, err)
	}
}

func TestHashMapTransaction(t *testing.T) {
	t.Parallel()

	eng, err := NewHashMap("test", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Put(makeRecord(t, "p-1", "Anna")); err != nil {
		t.Fatal(err)
	}

	hm := eng.(*HashMap)

	// Rollback discards the buffered writes.
	tx, err := hm.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Put(makeRecord(t, "p-2", "Ben")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Delete("Person/p-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Get("Person/p-2"); err != nil {
		t.Fatalf("tx must see its own write: %v", err)
	}
	if _, err := tx.Get("Person/p-1"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("tx must see its own delete, got %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Get("Person/p-1"); err != nil {
		t.Fatalf("rollback must keep the record: %v", err)
	}
	if _, err := eng.Get("Person/p-2"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("rollback must discard the write, got %v", err)
	}

	// Commit applies them.
	tx, err = hm.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Put(makeRecord(t, "p-2", "Ben")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Delete("Person/p-1"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Get("Person/p-2"); err != nil {
		t.Fatalf("committed write missing: %v", err)
	}
	if _, err := eng.Get("Person/p-1"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("committed delete missing, got %v", err)
	}
}

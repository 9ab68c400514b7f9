package model

import (
	"context"

	"github.com/object-layer/object-layer/store"
)

// Tx coordinates a model-level transaction. Models and items entered into the
// transaction get isolated copies bound to the transaction's store view; when
// the transaction commits, the final state of every copy is merged back into
// the caller's objects, by identity. On rollback the caller's objects stay
// untouched.
type Tx struct {
	store  *store.Store
	models map[*Model]*Model
	items  map[*Item]*Item
}

// Store returns the transaction's isolated store view.
func (tx *Tx) Store() *store.Store {
	return tx.store
}

// Model returns the transaction copy of the given model. The copy shares the
// model's hooks and scope but operates on the transaction view.
func (tx *Tx) Model(m *Model) *Model {
	if copied, ok := tx.models[m]; ok {
		return copied
	}
	copied := m.withStore(tx.store)
	tx.models[m] = copied
	return copied
}

// Item returns the transaction copy of the given item: same class, deep
// copies of its values and snapshot, same origin metadata. Changes to the
// copy become visible on the original only when the transaction commits.
func (tx *Tx) Item(orig *Item) (*Item, error) {
	if copied, ok := tx.items[orig]; ok {
		return copied, nil
	}

	values, err := deepCopyValues(orig.values)
	if err != nil {
		return nil, err
	}

	copied := newItem(tx.Model(orig.model), orig.class, values)
	copied.origin = orig.origin
	if orig.saved != nil {
		saved, err := deepCopyValues(orig.saved)
		if err != nil {
			return nil, err
		}
		copied.saved = saved
	}

	tx.items[orig] = copied
	return copied, nil
}

// merge folds the final state of every transaction copy back into the
// original objects. The originals keep their map identity, so every holder of
// a reference observes the committed state.
func (tx *Tx) merge() {
	for orig, copied := range tx.items {
		for k := range orig.values {
			delete(orig.values, k)
		}
		for k, v := range copied.values {
			orig.values[k] = v
		}
		orig.saved = copied.saved
	}
}

// Transaction runs fn inside a transaction. fn works with copies obtained
// from the Tx; a nil return commits and merges the copies' state back into
// the originals, an error rolls everything back and is returned as-is. A
// transaction started inside a transaction joins the running one, there is no
// second isolation level.
func (m *Model) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	var tx *Tx
	err := m.store.Transaction(ctx, func(ctx context.Context, sview *store.Store) error {
		tx = &Tx{
			store:  sview,
			models: make(map[*Model]*Model),
			items:  make(map[*Item]*Item),
		}
		return fn(ctx, tx)
	})
	if err != nil {
		return err
	}

	tx.merge()
	return nil
}

package model

import (
	"context"
	"fmt"
	"reflect"

	"github.com/mitchellh/copystructure"
	"github.com/r3labs/diff/v3"
	"github.com/tevino/abool"

	"github.com/object-layer/object-layer/schema"
	"github.com/object-layer/object-layer/store"
)

// Origin is the back-reference of an item that was reached through a
// relation: the item it was fetched from and the relation that was followed.
type Origin struct {
	Item     *Item
	Relation *schema.Relation
}

// Item is one object of a class: its field values plus the snapshot of the
// state it last had in the store. An item without a snapshot has never been
// persisted.
type Item struct {
	model *Model
	class *schema.Class

	values map[string]interface{}
	saved  map[string]interface{}

	origin  *Origin
	proxies map[string]interface{}

	saving   *abool.AtomicBool
	deleting *abool.AtomicBool
}

func newItem(m *Model, cls *schema.Class, values map[string]interface{}) *Item {
	if values == nil {
		values = make(map[string]interface{})
	}
	return &Item{
		model:    m,
		class:    cls,
		values:   values,
		proxies:  make(map[string]interface{}),
		saving:   abool.NewBool(false),
		deleting: abool.NewBool(false),
	}
}

// Class returns the concrete class of the item.
func (it *Item) Class() *schema.Class {
	return it.class
}

// Model returns the model the item is bound to.
func (it *Item) Model() *Model {
	return it.model
}

// Origin returns the relation back-reference, or nil if the item was not
// reached through a relation.
func (it *Item) Origin() *Origin {
	return it.origin
}

// Get returns the value of a field.
func (it *Item) Get(field string) (interface{}, bool) {
	v, ok := it.values[field]
	return v, ok
}

// Set assigns a field value, coercing it to the declared field type. Values
// for undeclared fields are stored as-is.
func (it *Item) Set(field string, value interface{}) error {
	f, ok := it.class.Field(field)
	if !ok {
		it.values[field] = value
		return nil
	}
	nv, err := f.Normalize(value)
	if err != nil {
		return err
	}
	it.values[field] = nv
	return nil
}

// SetAll assigns multiple field values.
func (it *Item) SetAll(values map[string]interface{}) error {
	for field, value := range values {
		if err := it.Set(field, value); err != nil {
			return err
		}
	}
	return nil
}

// Values returns a shallow copy of the item's field values.
func (it *Item) Values() map[string]interface{} {
	values := make(map[string]interface{}, len(it.values))
	for k, v := range it.values {
		values[k] = v
	}
	return values
}

// PrimaryKeyValue returns the item's primary key value, if set.
func (it *Item) PrimaryKeyValue() (interface{}, bool) {
	pk := it.class.PrimaryKey()
	if pk == nil {
		return nil, false
	}
	v, ok := it.values[pk.Name()]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// IsNew returns whether the item has never been persisted.
func (it *Item) IsNew() bool {
	return it.saved == nil
}

// IsModified returns whether the item's values differ from the state it last
// had in the store. An item that was never persisted is always modified.
func (it *Item) IsModified() bool {
	if it.saved == nil {
		return true
	}
	return !reflect.DeepEqual(it.values, it.saved)
}

// ModifiedFields returns the names of the fields whose values differ from the
// last persisted state. For a never-persisted item that is every field.
func (it *Item) ModifiedFields() []string {
	changes, err := diff.Diff(it.saved, it.values)
	if err != nil || len(changes) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var fields []string
	for _, change := range changes {
		if len(change.Path) == 0 {
			continue
		}
		name := change.Path[0]
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}
	return fields
}

// snapshot records the current values as the last persisted state.
func (it *Item) snapshot() error {
	copied, err := deepCopyValues(it.values)
	if err != nil {
		return err
	}
	it.saved = copied
	return nil
}

// Save persists the item via its model.
func (it *Item) Save(ctx context.Context, opts *store.Options) error {
	return it.model.Save(ctx, it, opts)
}

// Delete removes the item via its model. It returns whether a stored record
// was removed.
func (it *Item) Delete(ctx context.Context, opts *store.Options) (bool, error) {
	return it.model.Delete(ctx, it, opts)
}

// Load refreshes the item from the store, merging the stored values into this
// same item.
func (it *Item) Load(ctx context.Context, opts *store.Options) error {
	return it.model.Load(ctx, it, opts)
}

// adoptRecordValues replaces the item's values with the given persisted state
// and snapshots it. The item keeps its identity; references to it observe the
// new state.
func (it *Item) adoptRecordValues(values map[string]interface{}) error {
	normalized, err := it.class.NormalizeValues(values)
	if err != nil {
		return err
	}

	for k := range it.values {
		delete(it.values, k)
	}
	for k, v := range normalized {
		it.values[k] = v
	}
	return it.snapshot()
}

func deepCopyValues(values map[string]interface{}) (map[string]interface{}, error) {
	copied, err := copystructure.Copy(values)
	if err != nil {
		return nil, fmt.Errorf("copy field values: %w", err)
	}
	m, ok := copied.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("copy field values: unexpected type %T", copied)
	}
	return m, nil
}

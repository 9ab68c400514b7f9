// Package model implements the object layer on top of the store facade:
// class-bound models, item lifecycle with snapshots, lazy relation proxies,
// lifecycle hooks and transactions that merge committed state back into the
// caller's objects.
package model

import (
	"context"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"github.com/object-layer/object-layer/record"
	"github.com/object-layer/object-layer/schema"
	"github.com/object-layer/object-layer/store"
)

// Model is the gateway to all items of one class (and its subclasses). A
// model obtained from a relation proxy is scoped: every query, count and
// delete it runs carries the relation's foreign key predicate.
type Model struct {
	store    *store.Store
	registry *schema.Registry
	class    *schema.Class
	hooks    *hookRegistry
	cache    gcache.Cache
	scope    *scope
}

// scope restricts a model to the items referenced by one relation instance.
type scope struct {
	foreignKey string
	value      interface{}
	origin     *Item
	relation   *schema.Relation
}

// Option configures a model.
type Option func(*Model)

// WithCacheSize enables an LRU read cache holding up to n records.
func WithCacheSize(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.cache = gcache.New(n).LRU().Build()
		}
	}
}

// New creates a model for the given class.
func New(st *store.Store, className string, opts ...Option) (*Model, error) {
	cls, err := st.Registry().Class(className)
	if err != nil {
		return nil, err
	}

	m := &Model{
		store:    st,
		registry: st.Registry(),
		class:    cls,
		hooks:    newHookRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Class returns the class the model serves.
func (m *Model) Class() *schema.Class {
	return m.class
}

// Store returns the store view the model operates on.
func (m *Model) Store() *store.Store {
	return m.store
}

// On registers a lifecycle hook.
func (m *Model) On(e Event, fn HookFunc) {
	m.hooks.add(e, fn)
}

// withStore returns a model bound to the given store view, sharing class,
// hooks and scope. The cache stays with the root model.
func (m *Model) withStore(st *store.Store) *Model {
	if st == m.store {
		return m
	}
	return &Model{
		store:    st,
		registry: m.registry,
		class:    m.class,
		hooks:    m.hooks,
		scope:    m.scope,
	}
}

// modelFor returns a model for another class on the same store view. It has
// its own empty hook registry.
func (m *Model) modelFor(className string) (*Model, error) {
	cls, err := m.registry.Class(className)
	if err != nil {
		return nil, err
	}
	return &Model{
		store:    m.store,
		registry: m.registry,
		class:    cls,
		hooks:    newHookRegistry(),
	}, nil
}

// scoped merges the model's relation scope into the given options.
func (m *Model) scoped(opts *store.Options) *store.Options {
	if opts == nil {
		opts = store.DefaultOptions()
	}
	if m.scope == nil {
		return opts
	}

	merged := *opts
	merged.Query = make(map[string]interface{}, len(opts.Query)+1)
	for k, v := range opts.Query {
		merged.Query[k] = v
	}
	merged.Query[m.scope.foreignKey] = m.scope.value
	return &merged
}

// Create builds a new, unsaved item from the given values: they are coerced
// to the declared field types and missing defaults are filled in. A scoped
// model presets the relation's foreign key. didCreate hooks run on the
// finished item.
func (m *Model) Create(ctx context.Context, values map[string]interface{}) (*Item, error) {
	if values == nil {
		values = make(map[string]interface{})
	}
	normalized, err := m.class.NormalizeValues(values)
	if err != nil {
		return nil, err
	}
	m.class.ApplyDefaults(normalized)

	item := newItem(m, m.class, normalized)
	if m.scope != nil {
		item.values[m.scope.foreignKey] = m.scope.value
		item.origin = &Origin{Item: m.scope.origin, Relation: m.scope.relation}
	}

	if err := m.hooks.fire(ctx, &HookEvent{Event: DidCreate, Model: m, Item: item}); err != nil {
		return nil, err
	}
	return item, nil
}

// Unserialize turns a stored record into an item of its concrete class, which
// is the most-derived class name the record was written under.
func (m *Model) Unserialize(r *record.Record) (*Item, error) {
	classNames := r.ClassNames()
	if len(classNames) == 0 {
		return nil, fmt.Errorf("record %s carries no class names", r.EngineKey())
	}
	cls, err := m.registry.Class(classNames[0])
	if err != nil {
		return nil, err
	}

	values, err := r.Values()
	if err != nil {
		return nil, err
	}

	item := newItem(m, cls, nil)
	if err := item.adoptRecordValues(values); err != nil {
		return nil, err
	}
	return item, nil
}

func (m *Model) cacheKey(key interface{}) (string, bool) {
	if m.cache == nil || m.store.InsideTransaction() {
		return "", false
	}
	keyStr, err := record.KeyValueString(key)
	if err != nil {
		return "", false
	}
	return record.MakeKey(m.class.Name(), keyStr), true
}

func (m *Model) dropCached(key interface{}) {
	if ck, ok := m.cacheKey(key); ok {
		m.cache.Remove(ck)
	}
}

func (m *Model) purgeCache() {
	if m.cache != nil {
		m.cache.Purge()
	}
}

// Get returns the item stored under the given primary key. Absence returns
// store.ErrNotFound, or nil when opts disable ErrorIfMissing.
func (m *Model) Get(ctx context.Context, key interface{}, opts *store.Options) (*Item, error) {
	if ck, ok := m.cacheKey(key); ok {
		if cached, err := m.cache.Get(ck); err == nil {
			if r, ok := cached.(*record.Record); ok {
				return m.Unserialize(r)
			}
		}
	}

	r, err := m.store.Get(ctx, m.class.Name(), key, opts)
	if err != nil || r == nil {
		return nil, err
	}

	if ck, ok := m.cacheKey(key); ok {
		_ = m.cache.Set(ck, r)
	}
	return m.Unserialize(r)
}

// Find returns all items matching the options, most-derived classes included.
func (m *Model) Find(ctx context.Context, opts *store.Options) ([]*Item, error) {
	records, err := m.store.Find(ctx, m.class.Name(), m.scoped(opts))
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(records))
	for _, r := range records {
		item, err := m.Unserialize(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Count returns the number of items matching the options.
func (m *Model) Count(ctx context.Context, opts *store.Options) (int, error) {
	return m.store.Count(ctx, m.class.Name(), m.scoped(opts))
}

// ForEach calls fn for every item matching the options.
func (m *Model) ForEach(ctx context.Context, opts *store.Options, fn func(item *Item) error) error {
	return m.store.ForEach(ctx, m.class.Name(), m.scoped(opts), func(r *record.Record) error {
		item, err := m.Unserialize(r)
		if err != nil {
			return err
		}
		return fn(item)
	})
}

// FindAndDelete removes all items matching the options. The willDestroy and
// didDestroy hooks run once around the whole operation, not per item.
func (m *Model) FindAndDelete(ctx context.Context, opts *store.Options) (int, error) {
	scoped := m.scoped(opts)

	if err := m.hooks.fire(ctx, &HookEvent{Event: WillDestroy, Model: m, Options: scoped}); err != nil {
		return 0, err
	}

	n, err := m.store.FindAndDelete(ctx, m.class.Name(), scoped)
	m.purgeCache()
	if err != nil {
		return n, err
	}

	if err := m.hooks.fire(ctx, &HookEvent{Event: DidDestroy, Model: m, Options: scoped}); err != nil {
		return n, err
	}
	return n, nil
}

// Save persists the item: willSave hooks, validation, key generation for new
// items, auto timestamps (unless the write comes from a system source), the
// write itself and didSave hooks all run inside one transaction. On success
// the item's snapshot is refreshed. Saving a new item whose key is already
// taken fails with store.ErrAlreadyExists.
func (m *Model) Save(ctx context.Context, item *Item, opts *store.Options) error {
	o := opts
	if o == nil {
		o = store.DefaultOptions()
	}

	if !item.saving.SetToIf(false, true) {
		// Reentrant save from a hook on the same item is a no-op.
		return nil
	}
	defer item.saving.UnSet()

	wasNew := item.IsNew()

	err := m.store.Transaction(ctx, func(ctx context.Context, tx *store.Store) error {
		txm := m.withStore(tx)

		if err := m.hooks.fire(ctx, &HookEvent{Event: WillSave, Model: txm, Item: item, Options: o}); err != nil {
			return err
		}

		if o.Validate {
			if err := item.class.Validate(item.values); err != nil {
				return err
			}
		}

		classNames := item.class.ClassNames()
		if len(classNames) == 0 {
			// Surfaces the precise hierarchy defect.
			if _, err := m.registry.RootClass(item.class); err != nil {
				return err
			}
			return fmt.Errorf("class %s cannot be persisted", item.class.Name())
		}

		pk := item.class.PrimaryKey()
		if wasNew {
			if _, err := schema.EnsureKeyValue(item.values, pk); err != nil {
				return err
			}
		}
		key, ok := item.values[pk.Name()]
		if !ok || key == nil {
			return fmt.Errorf("item of %s has no primary key value", item.class.Name())
		}

		if !o.Source.IsSystem() {
			now := time.Now().UTC()
			for _, f := range item.class.Fields() {
				switch {
				case f.IsAutoCreated():
					if v, ok := item.values[f.Name()]; !ok || v == nil {
						item.values[f.Name()] = now
					}
				case f.IsAutoModified():
					item.values[f.Name()] = now
				}
			}
		}

		_, err := tx.Put(ctx, classNames, key, item.values, &store.Options{
			ErrorIfExists: wasNew,
			Source:        o.Source,
		})
		if err != nil {
			return err
		}

		return m.hooks.fire(ctx, &HookEvent{Event: DidSave, Model: txm, Item: item, Options: o})
	})
	if err != nil {
		return err
	}

	if pkVal, ok := item.PrimaryKeyValue(); ok {
		m.dropCached(pkVal)
	}
	return item.snapshot()
}

// Delete removes the item's stored record, cascading into its has-one and
// has-many relations first. It returns whether a record was removed; with
// ErrorIfMissing set, absence fails with store.ErrNotFound instead.
func (m *Model) Delete(ctx context.Context, item *Item, opts *store.Options) (bool, error) {
	o := opts
	if o == nil {
		o = store.DefaultOptions()
	}

	if !item.deleting.SetToIf(false, true) {
		return false, nil
	}
	defer item.deleting.UnSet()

	var found bool
	err := m.store.Transaction(ctx, func(ctx context.Context, tx *store.Store) error {
		txm := m.withStore(tx)

		if err := m.hooks.fire(ctx, &HookEvent{Event: WillDelete, Model: txm, Item: item, Options: o}); err != nil {
			return err
		}

		if err := txm.cascadeDelete(ctx, item); err != nil {
			return err
		}

		pkVal, ok := item.PrimaryKeyValue()
		if !ok {
			// An item without a key of its own can still point at a stored
			// record through the relation it was reached from.
			r, err := txm.findByOrigin(ctx, item)
			if err != nil {
				return err
			}
			if r != nil {
				pkVal, ok = r.Key(), true
			}
		}
		if !ok {
			if o.ErrorIfMissing {
				return fmt.Errorf("%w: item of %s has no primary key value", store.ErrNotFound, item.class.Name())
			}
			return nil
		}

		var err error
		found, err = tx.Delete(ctx, item.class.Name(), pkVal, &store.Options{ErrorIfMissing: o.ErrorIfMissing})
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		return m.hooks.fire(ctx, &HookEvent{Event: DidDelete, Model: txm, Item: item, Options: o})
	})
	if err != nil {
		return false, err
	}

	if found {
		if pkVal, ok := item.PrimaryKeyValue(); ok {
			m.dropCached(pkVal)
		}
		for _, rel := range item.class.Relations() {
			// Cascades may have removed cached items of this class.
			if rel.Kind() == schema.HasOne || rel.Kind() == schema.HasMany {
				m.purgeCache()
				break
			}
		}
		item.saved = nil
	}
	return found, nil
}

// cascadeDelete removes the items referencing the given item through its
// has-one and has-many relations, recursing into each removed item's own
// relations so whole subtrees go. The cascade runs from a system source;
// per-item hooks of the target classes do not run.
func (m *Model) cascadeDelete(ctx context.Context, item *Item) error {
	return m.cascadeDeleteInto(ctx, item, map[string]bool{
		cascadeMark(item): true,
	})
}

func (m *Model) cascadeDeleteInto(ctx context.Context, item *Item, seen map[string]bool) error {
	pkVal, ok := item.PrimaryKeyValue()
	if !ok {
		return nil
	}

	for _, rel := range item.class.Relations() {
		if rel.Kind() != schema.HasOne && rel.Kind() != schema.HasMany {
			continue
		}
		target, err := m.modelFor(rel.TargetClass())
		if err != nil {
			return fmt.Errorf("cascade %s of %s: %w", rel.Name(), item.class.Name(), err)
		}
		children, err := target.Find(ctx, &store.Options{
			Query: map[string]interface{}{rel.ForeignKey(): pkVal},
		})
		if err != nil {
			return fmt.Errorf("cascade %s of %s: %w", rel.Name(), item.class.Name(), err)
		}

		for _, child := range children {
			mark := cascadeMark(child)
			if mark == "" || seen[mark] {
				// Cycle through the relation graph, already handled.
				continue
			}
			seen[mark] = true

			if err := target.cascadeDeleteInto(ctx, child, seen); err != nil {
				return err
			}

			childPK, _ := child.PrimaryKeyValue()
			_, err := m.store.Delete(ctx, child.class.Name(), childPK, &store.Options{
				ErrorIfMissing: false,
				Source:         store.SourceComputer,
			})
			if err != nil {
				return fmt.Errorf("cascade %s of %s: %w", rel.Name(), item.class.Name(), err)
			}
		}
	}
	return nil
}

// cascadeMark identifies an item for cycle protection during cascades.
func cascadeMark(item *Item) string {
	pkVal, ok := item.PrimaryKeyValue()
	if !ok {
		return ""
	}
	keyStr, err := record.KeyValueString(pkVal)
	if err != nil {
		return ""
	}
	return record.MakeKey(item.class.Name(), keyStr)
}

// Load refreshes the item from the store, merging the stored values into the
// same item so every holder of the reference observes the new state. An item
// without a primary key value that was reached through a relation is located
// by a foreign key query instead.
func (m *Model) Load(ctx context.Context, item *Item, opts *store.Options) error {
	o := opts
	if o == nil {
		o = store.DefaultOptions()
	}

	var r *record.Record
	if pkVal, ok := item.PrimaryKeyValue(); ok {
		var err error
		r, err = m.store.Get(ctx, item.class.Name(), pkVal, &store.Options{ErrorIfMissing: false})
		if err != nil {
			return err
		}
	} else {
		var err error
		r, err = m.findByOrigin(ctx, item)
		if err != nil {
			return err
		}
	}

	if r == nil {
		if o.ErrorIfMissing {
			return fmt.Errorf("%w: item of %s", store.ErrNotFound, item.class.Name())
		}
		return nil
	}

	values, err := r.Values()
	if err != nil {
		return err
	}
	return item.adoptRecordValues(values)
}

// findByOrigin locates the stored record of an item that carries no primary
// key of its own by querying the foreign key of the relation it was reached
// through. Belongs-to origins cannot locate their referrer this way.
func (m *Model) findByOrigin(ctx context.Context, item *Item) (*record.Record, error) {
	if item.origin == nil || item.origin.Relation.Kind() == schema.BelongsTo {
		return nil, nil
	}
	originPK, ok := item.origin.Item.PrimaryKeyValue()
	if !ok {
		return nil, nil
	}

	records, err := m.store.Find(ctx, item.class.Name(), &store.Options{
		Query: map[string]interface{}{item.origin.Relation.ForeignKey(): originPK},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

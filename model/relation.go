package model

import (
	"context"
	"fmt"

	"github.com/object-layer/object-layer/schema"
	"github.com/object-layer/object-layer/store"
)

// RelatedItem is the lazy proxy of a to-one relation (has-one or belongs-to).
// Nothing is fetched until Fetch is called; the result is cached on the
// proxy.
type RelatedItem struct {
	origin   *Item
	relation *schema.Relation
	model    *Model

	fetched *Item
}

// RelatedSet is the lazy proxy of a has-many relation. Its model is scoped:
// every find, count, create and mass delete carries the relation's foreign
// key predicate.
type RelatedSet struct {
	origin   *Item
	relation *schema.Relation
	model    *Model
}

// One returns the proxy of a to-one relation of the item. Proxies are cached
// per item and relation name.
func (it *Item) One(name string) (*RelatedItem, error) {
	if cached, ok := it.proxies[name]; ok {
		if proxy, ok := cached.(*RelatedItem); ok {
			return proxy, nil
		}
	}

	rel, ok := it.class.Relation(name)
	if !ok {
		return nil, fmt.Errorf("class %s has no relation %s", it.class.Name(), name)
	}
	if rel.Kind() == schema.HasMany {
		return nil, fmt.Errorf("relation %s of %s is has-many, use Many", name, it.class.Name())
	}

	var target *Model
	var err error
	if rel.Kind() == schema.HasOne {
		target, err = it.model.relationView(it, rel)
	} else {
		target, err = it.model.modelFor(rel.TargetClass())
	}
	if err != nil {
		return nil, err
	}

	proxy := &RelatedItem{origin: it, relation: rel, model: target}
	it.proxies[name] = proxy
	return proxy, nil
}

// Many returns the proxy of a has-many relation of the item.
func (it *Item) Many(name string) (*RelatedSet, error) {
	if cached, ok := it.proxies[name]; ok {
		if proxy, ok := cached.(*RelatedSet); ok {
			return proxy, nil
		}
	}

	rel, ok := it.class.Relation(name)
	if !ok {
		return nil, fmt.Errorf("class %s has no relation %s", it.class.Name(), name)
	}
	if rel.Kind() != schema.HasMany {
		return nil, fmt.Errorf("relation %s of %s is %s, use One", name, it.class.Name(), rel.Kind())
	}

	target, err := it.model.relationView(it, rel)
	if err != nil {
		return nil, err
	}

	proxy := &RelatedSet{origin: it, relation: rel, model: target}
	it.proxies[name] = proxy
	return proxy, nil
}

// relationView builds the scoped model of a relation: the target class's
// model restricted to records whose foreign key references the origin item.
func (m *Model) relationView(origin *Item, rel *schema.Relation) (*Model, error) {
	target, err := m.modelFor(rel.TargetClass())
	if err != nil {
		return nil, err
	}

	pkVal, _ := origin.PrimaryKeyValue()
	target.scope = &scope{
		foreignKey: rel.ForeignKey(),
		value:      pkVal,
		origin:     origin,
		relation:   rel,
	}
	return target, nil
}

// Model returns the proxy's (possibly scoped) target model.
func (p *RelatedItem) Model() *Model {
	return p.model
}

// Fetch resolves the relation. It reuses the origin chain instead of the
// store when the relation walks back to the item it was reached from. A
// has-one relation without a stored target yields a fresh unsaved item with
// the foreign key preset; a belongs-to without a stored target yields nil.
func (p *RelatedItem) Fetch(ctx context.Context) (*Item, error) {
	if p.fetched != nil {
		return p.fetched, nil
	}

	// Inverse traversal: the origin item already holds the answer.
	if back := p.inverseOf(); back != nil {
		p.fetched = back
		return back, nil
	}

	var item *Item
	switch p.relation.Kind() {
	case schema.HasOne:
		items, err := p.model.Find(ctx, &store.Options{Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			item = items[0]
		} else {
			// The scoped model presets the foreign key and origin.
			item, err = p.model.Create(ctx, nil)
			if err != nil {
				return nil, err
			}
		}
	case schema.BelongsTo:
		fkVal, ok := p.origin.Get(p.relation.ForeignKey())
		if !ok || fkVal == nil {
			return nil, nil
		}
		var err error
		item, err = p.model.Get(ctx, fkVal, &store.Options{ErrorIfMissing: false})
		if err != nil {
			return nil, err
		}
	}

	if item != nil {
		item.origin = &Origin{Item: p.origin, Relation: p.relation}
		p.fetched = item
	}
	return item, nil
}

// Set assigns an already loaded item to a belongs-to relation: the origin's
// foreign key is pointed at the item's primary key and the proxy serves the
// item from then on. Setting nil clears the reference.
func (p *RelatedItem) Set(item *Item) error {
	if p.relation.Kind() != schema.BelongsTo {
		return fmt.Errorf("relation %s of %s is %s, only belongs-to can be assigned",
			p.relation.Name(), p.origin.Class().Name(), p.relation.Kind())
	}

	if item == nil {
		p.fetched = nil
		return p.origin.Set(p.relation.ForeignKey(), nil)
	}

	pkVal, ok := item.PrimaryKeyValue()
	if !ok {
		return fmt.Errorf("item of %s has no primary key value", item.class.Name())
	}
	if err := p.origin.Set(p.relation.ForeignKey(), pkVal); err != nil {
		return err
	}
	p.fetched = item
	return nil
}

// inverseOf detects whether this relation walks back along the relation the
// origin item itself was fetched through, connected by the same foreign key.
func (p *RelatedItem) inverseOf() *Item {
	if p.relation.Kind() != schema.BelongsTo {
		return nil
	}
	po := p.origin.Origin()
	if po == nil || po.Item == nil {
		return nil
	}
	if po.Relation.ForeignKey() != p.relation.ForeignKey() {
		return nil
	}
	for cls := po.Item.Class(); cls != nil; cls = cls.Parent() {
		if cls.Name() == p.relation.TargetClass() {
			return po.Item
		}
	}
	return nil
}

// Model returns the scoped target model of the set.
func (p *RelatedSet) Model() *Model {
	return p.model
}

// Fetch returns all related items. Each carries an origin back-reference to
// the item the relation was followed from.
func (p *RelatedSet) Fetch(ctx context.Context) ([]*Item, error) {
	items, err := p.model.Find(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		item.origin = &Origin{Item: p.origin, Relation: p.relation}
	}
	return items, nil
}

// Count returns the number of related items.
func (p *RelatedSet) Count(ctx context.Context) (int, error) {
	return p.model.Count(ctx, nil)
}

// Create builds a new item of the target class with the relation's foreign
// key preset to the origin's primary key.
func (p *RelatedSet) Create(ctx context.Context, values map[string]interface{}) (*Item, error) {
	return p.model.Create(ctx, values)
}

// DeleteAll removes all related items.
func (p *RelatedSet) DeleteAll(ctx context.Context) (int, error) {
	return p.model.FindAndDelete(ctx, nil)
}

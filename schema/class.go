package schema

import (
	"fmt"
)

// Class holds the metadata of a single class in a hierarchy: its own field
// and relation descriptors plus a reference to its parent. Resolution of
// inherited descriptors composes the parent's lists with the own ones; a name
// defined again in a subclass shadows the ancestor definition for that class
// and its descendants only.
type Class struct {
	reg    *Registry
	name   string
	parent *Class

	fields    []*Field
	relations []*Relation

	// Resolved views, precomputed by Registry.finalize.
	resolvedFields    []*Field
	resolvedFieldIdx  map[string]*Field
	resolvedRelations []*Relation
	resolvedRelIdx    map[string]*Relation
	primaryKey        *Field
	classNames        []string
}

// Name returns the class name.
func (c *Class) Name() string {
	return c.name
}

// Parent returns the parent class, or nil for a base class.
func (c *Class) Parent() *Class {
	return c.parent
}

// DefineField attaches a field to the class.
func (c *Class) DefineField(name string, typ FieldType, opts ...FieldOption) *Field {
	f := &Field{name: name, typ: typ}
	for _, opt := range opts {
		opt(f)
	}
	c.fields = append(c.fields, f)
	c.reg.invalidate()
	return f
}

// DefinePrimaryKeyField attaches the primary key field of the hierarchy.
// A hierarchy has exactly one primary key; defining a second one anywhere in
// the ancestor chain fails.
func (c *Class) DefinePrimaryKeyField(name string, typ FieldType, opts ...FieldOption) (*Field, error) {
	for cls := c; cls != nil; cls = cls.parent {
		for _, f := range cls.fields {
			if f.primaryKey {
				return nil, fmt.Errorf("%w: %s already defines %s", ErrPrimaryKeyExists, cls.name, f.name)
			}
		}
	}

	f := c.DefineField(name, typ, opts...)
	f.primaryKey = true
	return f, nil
}

// DefineForeignKeyField attaches a foreign key field to the class.
func (c *Class) DefineForeignKeyField(name string, typ FieldType, opts ...FieldOption) *Field {
	f := c.DefineField(name, typ, opts...)
	f.foreignKey = true
	return f
}

// DefineRelation attaches a relation to the class. The definition is checked
// immediately and malformed definitions are rejected.
func (c *Class) DefineRelation(name string, kind RelationKind, targetClass, foreignKey string) (*Relation, error) {
	rel := &Relation{
		name:        name,
		kind:        kind,
		targetClass: targetClass,
		foreignKey:  foreignKey,
	}
	if err := rel.check(); err != nil {
		return nil, err
	}

	c.relations = append(c.relations, rel)
	c.reg.invalidate()
	return rel, nil
}

// DefineHasOne attaches a has-one relation.
func (c *Class) DefineHasOne(name, targetClass, foreignKey string) (*Relation, error) {
	return c.DefineRelation(name, HasOne, targetClass, foreignKey)
}

// DefineHasMany attaches a has-many relation.
func (c *Class) DefineHasMany(name, targetClass, foreignKey string) (*Relation, error) {
	return c.DefineRelation(name, HasMany, targetClass, foreignKey)
}

// DefineBelongsTo attaches a belongs-to relation.
func (c *Class) DefineBelongsTo(name, targetClass, foreignKey string) (*Relation, error) {
	return c.DefineRelation(name, BelongsTo, targetClass, foreignKey)
}

// Fields returns all fields of the class, inherited ones first, shadowed by
// name. The returned slice must not be modified.
func (c *Class) Fields() []*Field {
	c.reg.resolve()
	return c.resolvedFields
}

// Field returns the field with the given name, considering inheritance.
func (c *Class) Field(name string) (*Field, bool) {
	c.reg.resolve()
	f, ok := c.resolvedFieldIdx[name]
	return f, ok
}

// Relations returns all relations of the class, inherited ones first,
// shadowed by name. The returned slice must not be modified.
func (c *Class) Relations() []*Relation {
	c.reg.resolve()
	return c.resolvedRelations
}

// Relation returns the relation with the given name, considering inheritance.
func (c *Class) Relation(name string) (*Relation, bool) {
	c.reg.resolve()
	rel, ok := c.resolvedRelIdx[name]
	return rel, ok
}

// PrimaryKey returns the primary key field, own or inherited, or nil if the
// hierarchy does not declare one above this class.
func (c *Class) PrimaryKey() *Field {
	c.reg.resolve()
	return c.primaryKey
}

// ClassNames returns the ordered, de-duplicated list of class names that
// share this class's physical collection: the class itself and every ancestor
// up to (and including) the last one that still sees a primary key. This is
// the exact set written into a stored record.
func (c *Class) ClassNames() []string {
	c.reg.resolve()
	return c.classNames
}

// Validate checks the given field values against the class's field types and
// validators. It returns a *ValidationError listing all offending fields.
func (c *Class) Validate(values map[string]interface{}) error {
	c.reg.resolve()

	failed := make(map[string]error)
	for _, f := range c.resolvedFields {
		value, ok := values[f.name]
		if !ok {
			continue
		}
		if err := f.validate(value); err != nil {
			failed[f.name] = err
		}
	}

	if len(failed) > 0 {
		return &ValidationError{Class: c.name, Fields: failed}
	}
	return nil
}

// NormalizeValues coerces raw values (eg. from a serialization round trip)
// into the canonical representations of the declared field types. Values for
// unknown fields are carried over untouched.
func (c *Class) NormalizeValues(values map[string]interface{}) (map[string]interface{}, error) {
	c.reg.resolve()

	normalized := make(map[string]interface{}, len(values))
	for name, value := range values {
		f, ok := c.resolvedFieldIdx[name]
		if !ok {
			normalized[name] = value
			continue
		}
		nv, err := f.Normalize(value)
		if err != nil {
			return nil, err
		}
		normalized[name] = nv
	}
	return normalized, nil
}

// ApplyDefaults fills missing values with the declared field defaults.
func (c *Class) ApplyDefaults(values map[string]interface{}) {
	c.reg.resolve()

	for _, f := range c.resolvedFields {
		if f.defaultValue == nil {
			continue
		}
		if _, ok := values[f.name]; !ok {
			values[f.name] = f.defaultValue
		}
	}
}

// resolveLocked recomputes the inherited views. The registry lock must be
// held and parents must already be resolved, which holds because classes are
// finalized in definition order and a parent is always defined first.
func (c *Class) resolveLocked() {
	var parentFields []*Field
	var parentRelations []*Relation
	if c.parent != nil {
		parentFields = c.parent.resolvedFields
		parentRelations = c.parent.resolvedRelations
	}

	c.resolvedFields = make([]*Field, 0, len(parentFields)+len(c.fields))
	c.resolvedFieldIdx = make(map[string]*Field, len(parentFields)+len(c.fields))
	for _, f := range parentFields {
		c.resolvedFields = append(c.resolvedFields, f)
		c.resolvedFieldIdx[f.name] = f
	}
	for _, f := range c.fields {
		if shadowed, ok := c.resolvedFieldIdx[f.name]; ok {
			for i, rf := range c.resolvedFields {
				if rf == shadowed {
					c.resolvedFields[i] = f
					break
				}
			}
		} else {
			c.resolvedFields = append(c.resolvedFields, f)
		}
		c.resolvedFieldIdx[f.name] = f
	}

	c.resolvedRelations = make([]*Relation, 0, len(parentRelations)+len(c.relations))
	c.resolvedRelIdx = make(map[string]*Relation, len(parentRelations)+len(c.relations))
	for _, rel := range parentRelations {
		c.resolvedRelations = append(c.resolvedRelations, rel)
		c.resolvedRelIdx[rel.name] = rel
	}
	for _, rel := range c.relations {
		if shadowed, ok := c.resolvedRelIdx[rel.name]; ok {
			for i, rr := range c.resolvedRelations {
				if rr == shadowed {
					c.resolvedRelations[i] = rel
					break
				}
			}
		} else {
			c.resolvedRelations = append(c.resolvedRelations, rel)
		}
		c.resolvedRelIdx[rel.name] = rel
	}

	c.primaryKey = nil
	for _, f := range c.resolvedFields {
		if f.primaryKey {
			c.primaryKey = f
			break
		}
	}

	// Walk up while each class still sees a primary key.
	c.classNames = nil
	seen := make(map[string]bool)
	for cls := c; cls != nil; cls = cls.parent {
		if cls.primaryKeyLocked() == nil {
			break
		}
		if !seen[cls.name] {
			c.classNames = append(c.classNames, cls.name)
			seen[cls.name] = true
		}
	}
}

// primaryKeyLocked reports the own-or-inherited primary key without relying
// on the resolved cache of ancestors being newer than this class's one.
func (c *Class) primaryKeyLocked() *Field {
	for cls := c; cls != nil; cls = cls.parent {
		for _, f := range cls.fields {
			if f.primaryKey {
				return f
			}
		}
	}
	return nil
}

package schema

import "fmt"

// RelationKind is the kind of a relation between two classes.
type RelationKind uint8

// Relation kinds.
const (
	HasOne RelationKind = iota + 1
	HasMany
	BelongsTo
)

func (rk RelationKind) String() string {
	switch rk {
	case HasOne:
		return "has-one"
	case HasMany:
		return "has-many"
	case BelongsTo:
		return "belongs-to"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(rk))
	}
}

// Relation describes a relation from one class to another, connected through
// a foreign key field on the has-one/has-many target or on the belongs-to
// owner itself.
type Relation struct {
	name        string
	kind        RelationKind
	targetClass string
	foreignKey  string
}

// Name returns the relation name.
func (r *Relation) Name() string {
	return r.name
}

// Kind returns the relation kind.
func (r *Relation) Kind() RelationKind {
	return r.kind
}

// TargetClass returns the name of the class the relation points to.
func (r *Relation) TargetClass() string {
	return r.targetClass
}

// ForeignKey returns the name of the foreign key field.
func (r *Relation) ForeignKey() string {
	return r.foreignKey
}

func (r *Relation) check() error {
	switch {
	case r.name == "":
		return fmt.Errorf("%w: name must not be empty", ErrInvalidRelationDefinition)
	case r.targetClass == "":
		return fmt.Errorf("%w: relation %s: target class must not be empty", ErrInvalidRelationDefinition, r.name)
	case r.foreignKey == "":
		return fmt.Errorf("%w: relation %s: foreign key must not be empty", ErrInvalidRelationDefinition, r.name)
	}

	switch r.kind {
	case HasOne, HasMany, BelongsTo:
		return nil
	default:
		return fmt.Errorf("%w: relation %s: unknown kind %d", ErrInvalidRelationDefinition, r.name, r.kind)
	}
}

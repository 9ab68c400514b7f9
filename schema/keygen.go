package schema

import (
	"fmt"
	"math/rand"

	"github.com/gofrs/uuid"
)

// DefaultMaxIntegerKey is the upper bound (inclusive) for generated integer
// key values.
const DefaultMaxIntegerKey = 2_000_000_000

// GenerateKeyValue produces a random value for a primary or foreign key
// field: an opaque fixed-length token for string keys, a random integer in
// [1, max] for integer keys.
func GenerateKeyValue(f *Field) (interface{}, error) {
	return GenerateKeyValueMax(f, DefaultMaxIntegerKey)
}

// GenerateKeyValueMax is like GenerateKeyValue with a custom integer bound.
func GenerateKeyValueMax(f *Field, maxInt int64) (interface{}, error) {
	switch f.Type() {
	case String:
		token, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("generate key token: %w", err)
		}
		return token.String(), nil
	case Integer:
		return 1 + rand.Int63n(maxInt), nil
	default:
		return nil, fmt.Errorf("%w: %s (field %s)", ErrUnsupportedKeyType, f.Type(), f.Name())
	}
}

// EnsureKeyValue sets a generated value for the given key field in values,
// unless one is already set. It returns the effective value.
func EnsureKeyValue(values map[string]interface{}, f *Field) (interface{}, error) {
	if v, ok := values[f.Name()]; ok && v != nil {
		return v, nil
	}
	v, err := GenerateKeyValue(f)
	if err != nil {
		return nil, err
	}
	values[f.Name()] = v
	return v, nil
}

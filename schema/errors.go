package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Errors.
var (
	ErrClassExists               = errors.New("class is already defined")
	ErrClassNotFound             = errors.New("class is not defined")
	ErrPrimaryKeyExists          = errors.New("hierarchy already has a primary key")
	ErrNoRoot                    = errors.New("hierarchy has no root class")
	ErrAmbiguousHierarchy        = errors.New("hierarchy has more than one root class")
	ErrUnsupportedKeyType        = errors.New("key type is not supported for value generation")
	ErrInvalidRelationDefinition = errors.New("invalid relation definition")
)

// ValidationError reports field-level validation failures. It is returned by
// Class.Validate and aborts a save before anything is persisted.
type ValidationError struct {
	Class  string
	Fields map[string]error
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return fmt.Sprintf("validation of %s failed: %s", e.Class, strings.Join(parts, "; "))
}

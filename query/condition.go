// Package query provides compiled queries for the object layer: a collection
// scope, an optional key prefix, a condition tree matched through accessors,
// and ordering/limit/batching options.
package query

import (
	"fmt"
	"time"

	"github.com/object-layer/object-layer/accessor"
)

// Condition is an interface to provide a common api to all condition types.
type Condition interface {
	complies(acc accessor.Accessor) bool
	check() error
	string() string
}

// Operators.
const (
	Equals                  uint8 = iota // int
	GreaterThan                          // int
	GreaterThanOrEqual                   // int
	LessThan                             // int
	LessThanOrEqual                      // int
	FloatEquals                          // float
	FloatGreaterThan                     // float
	FloatGreaterThanOrEqual              // float
	FloatLessThan                        // float
	FloatLessThanOrEqual                 // float
	SameAs                               // string
	Contains                             // string
	StartsWith                           // string
	EndsWith                             // string
	Is                                   // bool
	Exists                               // any

	errorPresent uint8 = 255
)

// Where returns a condition to add to a query.
func Where(key string, operator uint8, value interface{}) Condition {
	switch operator {
	case Equals,
		GreaterThan,
		GreaterThanOrEqual,
		LessThan,
		LessThanOrEqual:
		return newIntCondition(key, operator, value)
	case FloatEquals,
		FloatGreaterThan,
		FloatGreaterThanOrEqual,
		FloatLessThan,
		FloatLessThanOrEqual:
		return newFloatCondition(key, operator, value)
	case SameAs,
		Contains,
		StartsWith,
		EndsWith:
		return newStringCondition(key, operator, value)
	case Is:
		return newBoolCondition(key, operator, value)
	case Exists:
		return newExistsCondition(key, operator)
	default:
		return newErrorCondition(fmt.Errorf("no operator with ID %d", operator))
	}
}

// Eq returns an equality condition with the operator chosen by the dynamic
// type of value. This is the building block for plain field→value query maps.
func Eq(key string, value interface{}) Condition {
	switch v := value.(type) {
	case string:
		return newStringCondition(key, SameAs, v)
	case bool:
		return newBoolCondition(key, Is, v)
	case float32, float64:
		return newFloatCondition(key, FloatEquals, v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return newIntCondition(key, Equals, v)
	case time.Time:
		return newStringCondition(key, SameAs, v.Format(time.RFC3339Nano))
	case nil:
		return Not(Where(key, Exists, nil))
	default:
		return newErrorCondition(fmt.Errorf("incomparable value %v (%T) for field %s", value, value, key))
	}
}

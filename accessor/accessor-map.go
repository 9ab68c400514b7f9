package accessor

import (
	"fmt"
	"time"
)

// MapAccessor gives access to a decoded field value map.
type MapAccessor struct {
	values map[string]interface{}
}

// NewMapAccessor adds the Accessor interface to a field value map.
func NewMapAccessor(values map[string]interface{}) *MapAccessor {
	return &MapAccessor{
		values: values,
	}
}

// Set sets the value identified by key.
func (ma *MapAccessor) Set(key string, value interface{}) error {
	ma.values[key] = value
	return nil
}

// Get returns the value identified by key and whether it exists.
func (ma *MapAccessor) Get(key string) (value interface{}, ok bool) {
	value, ok = ma.values[key]
	return
}

// GetString returns the string identified by key and whether it could be
// successfully extracted.
func (ma *MapAccessor) GetString(key string) (value string, ok bool) {
	v, ok := ma.values[key]
	if !ok {
		return emptyString, false
	}
	switch tv := v.(type) {
	case string:
		return tv, true
	case time.Time:
		return tv.Format(time.RFC3339Nano), true
	default:
		return emptyString, false
	}
}

// GetStringArray returns the []string identified by key and whether it could
// be successfully extracted.
func (ma *MapAccessor) GetStringArray(key string) (value []string, ok bool) {
	v, ok := ma.values[key]
	if !ok {
		return nil, false
	}
	switch tv := v.(type) {
	case []string:
		return tv, true
	case []interface{}:
		strs := make([]string, 0, len(tv))
		for _, el := range tv {
			s, sok := el.(string)
			if !sok {
				return nil, false
			}
			strs = append(strs, s)
		}
		return strs, true
	default:
		return nil, false
	}
}

// GetInt returns the int identified by key and whether it could be
// successfully extracted.
func (ma *MapAccessor) GetInt(key string) (value int64, ok bool) {
	v, ok := ma.values[key]
	if !ok {
		return 0, false
	}
	switch tv := v.(type) {
	case int:
		return int64(tv), true
	case int32:
		return int64(tv), true
	case int64:
		return tv, true
	case uint:
		return int64(tv), true
	case uint32:
		return int64(tv), true
	case float64:
		if tv == float64(int64(tv)) {
			return int64(tv), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// GetFloat returns the float identified by key and whether it could be
// successfully extracted.
func (ma *MapAccessor) GetFloat(key string) (value float64, ok bool) {
	v, ok := ma.values[key]
	if !ok {
		return 0, false
	}
	switch tv := v.(type) {
	case float32:
		return float64(tv), true
	case float64:
		return tv, true
	case int:
		return float64(tv), true
	case int64:
		return float64(tv), true
	default:
		return 0, false
	}
}

// GetBool returns the bool identified by key and whether it could be
// successfully extracted.
func (ma *MapAccessor) GetBool(key string) (value bool, ok bool) {
	v, ok := ma.values[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Exists returns whether the key exists.
func (ma *MapAccessor) Exists(key string) bool {
	_, ok := ma.values[key]
	return ok
}

// Type returns the accessor type as a string.
func (ma *MapAccessor) Type() string {
	return fmt.Sprintf("%T", ma)
}

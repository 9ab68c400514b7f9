package record

import (
	"fmt"
	"strconv"
	"strings"
)

// MakeKey joins a collection name and a primary key into an engine key.
func MakeKey(collection, key string) string {
	return collection + "/" + key
}

// ParseKey splits an engine key into its collection and key parts.
func ParseKey(key string) (collection, recordKey string) {
	split := strings.SplitN(key, "/", 2)
	if len(split) < 2 {
		return split[0], ""
	}
	return split[0], split[1]
}

// KeyValueString renders a primary/foreign key value as the string used in
// engine keys. Only string and integer key values are supported.
func KeyValueString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		// Serialization round trips deliver integer keys as floats.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return "", fmt.Errorf("key value %v is not an integer", v)
	case nil:
		return "", fmt.Errorf("key value is not set")
	default:
		return "", fmt.Errorf("key value %v (%T) is not supported", value, value)
	}
}

package accessor

import (
	"encoding/json"
	"testing"
	"time"
)

var testValues = map[string]interface{}{
	"name":    "Marie",
	"age":     int64(29),
	"score":   4.5,
	"active":  true,
	"tags":    []string{"a", "b"},
	"touched": time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func testAccessors(t *testing.T) []Accessor {
	t.Helper()

	data, err := json.Marshal(testValues)
	if err != nil {
		t.Fatal(err)
	}
	return []Accessor{
		NewMapAccessor(testValues),
		NewJSONBytesAccessor(&data),
	}
}

func TestAccessorGet(t *testing.T) {
	t.Parallel()

	for _, acc := range testAccessors(t) {
		name, ok := acc.GetString("name")
		if !ok || name != "Marie" {
			t.Errorf("%s: GetString(name) = %q, %v", acc.Type(), name, ok)
		}
		age, ok := acc.GetInt("age")
		if !ok || age != 29 {
			t.Errorf("%s: GetInt(age) = %d, %v", acc.Type(), age, ok)
		}
		score, ok := acc.GetFloat("score")
		if !ok || score != 4.5 {
			t.Errorf("%s: GetFloat(score) = %f, %v", acc.Type(), score, ok)
		}
		active, ok := acc.GetBool("active")
		if !ok || !active {
			t.Errorf("%s: GetBool(active) = %v, %v", acc.Type(), active, ok)
		}
		tags, ok := acc.GetStringArray("tags")
		if !ok || len(tags) != 2 || tags[0] != "a" {
			t.Errorf("%s: GetStringArray(tags) = %v, %v", acc.Type(), tags, ok)
		}
		if !acc.Exists("name") || acc.Exists("missing") {
			t.Errorf("%s: Exists broken", acc.Type())
		}

		// Cross-type reads fail cleanly.
		if _, ok := acc.GetInt("name"); ok {
			t.Errorf("%s: GetInt(name) must fail", acc.Type())
		}
		if _, ok := acc.GetBool("age"); ok {
			t.Errorf("%s: GetBool(age) must fail", acc.Type())
		}
	}
}

func TestAccessorTimeAsString(t *testing.T) {
	t.Parallel()

	for _, acc := range testAccessors(t) {
		v, ok := acc.GetString("touched")
		if !ok || v == "" {
			t.Errorf("%s: time field not readable as string: %q, %v", acc.Type(), v, ok)
		}
	}
}

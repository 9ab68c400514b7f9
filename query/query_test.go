package query

import (
	"testing"

	"github.com/object-layer/object-layer/accessor"
)

var testValues = map[string]interface{}{
	"name":    "Marie",
	"country": "France",
	"age":     int64(29),
	"score":   4.5,
	"active":  true,
}

func testAccessor() accessor.Accessor {
	return accessor.NewMapAccessor(testValues)
}

func testComplies(t *testing.T, c Condition, want bool) {
	t.Helper()
	if err := c.check(); err != nil {
		t.Fatalf("invalid condition %s: %s", c.string(), err)
	}
	if c.complies(testAccessor()) != want {
		t.Errorf("condition %s: expected complies=%v", c.string(), want)
	}
}

func TestConditions(t *testing.T) {
	t.Parallel()

	testComplies(t, Where("name", SameAs, "Marie"), true)
	testComplies(t, Where("name", Contains, "ari"), true)
	testComplies(t, Where("name", StartsWith, "Ma"), true)
	testComplies(t, Where("name", EndsWith, "ie"), true)
	testComplies(t, Where("name", SameAs, "Pierre"), false)

	testComplies(t, Where("age", Equals, 29), true)
	testComplies(t, Where("age", GreaterThan, 20), true)
	testComplies(t, Where("age", LessThanOrEqual, 29), true)
	testComplies(t, Where("age", LessThan, 29), false)

	testComplies(t, Where("score", FloatEquals, 4.5), true)
	testComplies(t, Where("score", FloatGreaterThan, 4), true)
	testComplies(t, Where("score", FloatLessThan, 4), false)

	testComplies(t, Where("active", Is, true), true)
	testComplies(t, Where("active", Is, false), false)

	testComplies(t, Where("country", Exists, nil), true)
	testComplies(t, Where("city", Exists, nil), false)

	testComplies(t, And(
		Where("name", SameAs, "Marie"),
		Where("age", GreaterThan, 18),
	), true)
	testComplies(t, Or(
		Where("name", SameAs, "Pierre"),
		Where("age", GreaterThan, 18),
	), true)
	testComplies(t, Not(Where("active", Is, true)), false)
}

func TestEq(t *testing.T) {
	t.Parallel()

	testComplies(t, Eq("name", "Marie"), true)
	testComplies(t, Eq("age", 29), true)
	testComplies(t, Eq("score", 4.5), true)
	testComplies(t, Eq("active", true), true)
	testComplies(t, Eq("city", nil), true)
	testComplies(t, Eq("country", nil), false)
}

func TestInvalidCondition(t *testing.T) {
	t.Parallel()

	c := Where("age", Equals, "not a number")
	if err := c.check(); err == nil {
		t.Fatal("expected parse error")
	}

	if _, err := New("People").Where(c).Check(); err == nil {
		t.Fatal("expected invalid query")
	}
	if _, err := New("").Check(); err == nil {
		t.Fatal("expected missing collection error")
	}
}

func TestQueryMatching(t *testing.T) {
	t.Parallel()

	q, err := New("People").
		KeyPrefix("p-").
		Where(Eq("country", "France")).
		Check()
	if err != nil {
		t.Fatal(err)
	}

	if !q.MatchesKey("p-1") || q.MatchesKey("x-1") {
		t.Fatal("key prefix matching broken")
	}
	if !q.MatchesAccessor(testAccessor()) {
		t.Fatal("accessor matching broken")
	}
	if q.GetBatchSize() != DefaultBatchSize {
		t.Fatalf("unexpected default batch size: %d", q.GetBatchSize())
	}
}

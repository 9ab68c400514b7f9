package query

import (
	"fmt"
	"strings"

	"github.com/object-layer/object-layer/accessor"
	"github.com/object-layer/object-layer/record"
)

// DefaultBatchSize is the number of results processed between scheduler
// yields during iteration.
const DefaultBatchSize = 250

// Query contains a compiled query.
type Query struct {
	checked    bool
	collection string
	keyPrefix  string
	where      Condition
	orderBy    string
	limit      int
	offset     int
	batchSize  int
}

// New creates a new query scoped to the given physical collection.
func New(collection string) *Query {
	return &Query{
		collection: collection,
	}
}

// KeyPrefix restricts the query to keys with the given prefix.
func (q *Query) KeyPrefix(prefix string) *Query {
	q.keyPrefix = prefix
	return q
}

// Where adds filtering.
func (q *Query) Where(condition Condition) *Query {
	q.where = condition
	return q
}

// Limit limits the number of returned results.
func (q *Query) Limit(limit int) *Query {
	q.limit = limit
	return q
}

// Offset sets the query offset.
func (q *Query) Offset(offset int) *Query {
	q.offset = offset
	return q
}

// OrderBy orders the results by the given field.
func (q *Query) OrderBy(field string) *Query {
	q.orderBy = field
	return q
}

// BatchSize sets the iteration chunk size.
func (q *Query) BatchSize(n int) *Query {
	q.batchSize = n
	return q
}

// Check checks for errors in the query.
func (q *Query) Check() (*Query, error) {
	if q.checked {
		return q, nil
	}

	if q.collection == "" {
		return nil, fmt.Errorf("query has no collection")
	}
	if q.where != nil {
		err := q.where.check()
		if err != nil {
			return nil, err
		}
	}

	q.checked = true
	return q, nil
}

// MustBeValid checks for errors in the query and panics if there is an error.
func (q *Query) MustBeValid() *Query {
	_, err := q.Check()
	if err != nil {
		panic(err)
	}
	return q
}

// IsChecked returns whether the query was checked.
func (q *Query) IsChecked() bool {
	return q.checked
}

// MatchesKey checks whether the query matches the supplied record key
// (without the collection prefix).
func (q *Query) MatchesKey(key string) bool {
	return strings.HasPrefix(key, q.keyPrefix)
}

// MatchesRecord checks whether the query matches the supplied record's
// values, ignoring key and collection scope.
func (q *Query) MatchesRecord(r *record.Record) bool {
	if q.where == nil {
		return true
	}

	acc := r.GetAccessor()
	if acc == nil {
		return false
	}
	return q.where.complies(acc)
}

// MatchesAccessor checks whether the query matches the supplied accessor
// (value only).
func (q *Query) MatchesAccessor(acc accessor.Accessor) bool {
	if q.where == nil {
		return true
	}
	return q.where.complies(acc)
}

// Matches checks whether the query matches the supplied record.
func (q *Query) Matches(r *record.Record) bool {
	if !q.MatchesKey(r.Key()) {
		return false
	}
	return q.MatchesRecord(r)
}

// Collection returns the physical collection the query is scoped to.
func (q *Query) Collection() string {
	return q.collection
}

// GetKeyPrefix returns the key prefix scope.
func (q *Query) GetKeyPrefix() string {
	return q.keyPrefix
}

// GetOrderBy returns the ordering field, or an empty string.
func (q *Query) GetOrderBy() string {
	return q.orderBy
}

// GetLimit returns the result limit, 0 meaning unlimited.
func (q *Query) GetLimit() int {
	return q.limit
}

// GetOffset returns the result offset.
func (q *Query) GetOffset() int {
	return q.offset
}

// GetBatchSize returns the iteration chunk size.
func (q *Query) GetBatchSize() int {
	if q.batchSize <= 0 {
		return DefaultBatchSize
	}
	return q.batchSize
}

// Print returns the string representation of the query.
func (q *Query) Print() string {
	var where string
	if q.where != nil {
		where = q.where.string()
		if where != "" {
			if strings.HasPrefix(where, "(") {
				where = where[1 : len(where)-1]
			}
			where = fmt.Sprintf(" where %s", where)
		}
	}

	var orderBy string
	if q.orderBy != "" {
		orderBy = fmt.Sprintf(" orderby %s", q.orderBy)
	}

	var limit string
	if q.limit > 0 {
		limit = fmt.Sprintf(" limit %d", q.limit)
	}

	var offset string
	if q.offset > 0 {
		offset = fmt.Sprintf(" offset %d", q.offset)
	}

	return fmt.Sprintf("query %s/%s%s%s%s%s", q.collection, q.keyPrefix, where, orderBy, limit, offset)
}

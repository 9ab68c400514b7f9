package store

import (
	"github.com/object-layer/object-layer/query"
)

// Source tags the origin of a write. Writes from a system source keep the
// application-level auto timestamps untouched.
type Source string

// Known write sources.
const (
	SourceComputer           Source = "computer"
	SourceLocalSynchronizer  Source = "localSynchronizer"
	SourceRemoteSynchronizer Source = "remoteSynchronizer"
	SourceArchive            Source = "archive"
)

// IsSystem returns whether the source is a system source.
func (s Source) IsSystem() bool {
	return s != ""
}

// Options control a single store operation. The zero value is not the
// default; use DefaultOptions (or nil, which is treated as the default) and
// override selectively.
type Options struct {
	// Query filters matching records by field equality.
	Query map[string]interface{}
	// Condition is an arbitrary condition tree (comparisons, string matching,
	// and/or/not) applied in addition to the Query map.
	Condition query.Condition
	// Order names the field to sort results by. A "-" prefix reverses.
	Order string
	// Limit caps the number of results, 0 meaning unlimited.
	Limit int
	// Offset skips the first n results after ordering.
	Offset int
	// BatchSize is the iteration chunk between scheduler yields.
	BatchSize int

	// ErrorIfMissing makes reads and deletes of absent records fail with
	// ErrNotFound instead of reporting absence.
	ErrorIfMissing bool
	// ErrorIfExists makes writes fail with ErrAlreadyExists if a record is
	// already stored under the key.
	ErrorIfExists bool
	// Validate runs field validation before persistence.
	Validate bool
	// Source tags the origin of the write.
	Source Source
}

// DefaultOptions returns the default operation options.
func DefaultOptions() *Options {
	return &Options{
		ErrorIfMissing: true,
		Validate:       true,
		BatchSize:      query.DefaultBatchSize,
	}
}

func (o *Options) orDefault() *Options {
	if o == nil {
		return DefaultOptions()
	}
	return o
}

func (o *Options) batchSize() int {
	if o.BatchSize <= 0 {
		return query.DefaultBatchSize
	}
	return o.BatchSize
}

// buildQuery compiles the option's filters into an engine query for the given
// physical collection.
func (o *Options) buildQuery(collection string) (*query.Query, error) {
	q := query.New(collection).BatchSize(o.BatchSize)

	conditions := make([]query.Condition, 0, len(o.Query)+1)
	for key, value := range o.Query {
		conditions = append(conditions, query.Eq(key, value))
	}
	if o.Condition != nil {
		conditions = append(conditions, o.Condition)
	}
	switch len(conditions) {
	case 0:
	case 1:
		q.Where(conditions[0])
	default:
		q.Where(query.And(conditions...))
	}

	return q.Check()
}

// Package record implements the stored-record representation of the object
// layer: the serialized field map of an item, tagged with all hierarchy class
// names that share its physical collection, framed with storage metadata.
package record

import (
	"errors"
	"fmt"

	"github.com/safing/structures/container"
	"github.com/safing/structures/dsd"
	"github.com/safing/structures/varint"

	"github.com/object-layer/object-layer/accessor"
)

const formatVersion = 1

// Record is a stored record: the serialized field values of one item, plus
// the ordered list of class names under which it can be retrieved.
// ClassNames[0] is always the most-derived class that wrote the record.
type Record struct {
	classNames []string
	collection string
	key        string
	meta       *Meta

	format uint8
	data   []byte

	values map[string]interface{}
}

// New creates a record from decoded field values. The values are serialized
// immediately and the record does not retain the caller's map, so later
// mutations of it are not reflected.
func New(classNames []string, collection, key string, values map[string]interface{}) (*Record, error) {
	if len(classNames) == 0 {
		return nil, errors.New("record needs at least one class name")
	}

	dumped, err := dsd.Dump(values, dsd.JSON)
	if err != nil {
		return nil, fmt.Errorf("serialize field values: %w", err)
	}
	format, n, err := varint.Unpack8(dumped)
	if err != nil {
		return nil, err
	}

	return &Record{
		classNames: classNames,
		collection: collection,
		key:        key,
		meta:       &Meta{},
		format:     format,
		data:       dumped[n:],
	}, nil
}

// ClassNames returns the ordered class name list of the record.
func (r *Record) ClassNames() []string {
	return r.classNames
}

// Collection returns the physical collection the record belongs to.
func (r *Record) Collection() string {
	return r.collection
}

// Key returns the primary key of the record in string form.
func (r *Record) Key() string {
	return r.key
}

// EngineKey returns the full engine key of the record.
func (r *Record) EngineKey() string {
	return MakeKey(r.collection, r.key)
}

// Meta returns the storage metadata of the record.
func (r *Record) Meta() *Meta {
	return r.meta
}

// IsOf returns whether the record can be retrieved as the given class.
func (r *Record) IsOf(className string) bool {
	for _, name := range r.classNames {
		if name == className {
			return true
		}
	}
	return false
}

// Values returns the decoded field values, deserializing them on first use.
func (r *Record) Values() (map[string]interface{}, error) {
	if r.values != nil {
		return r.values, nil
	}

	values := make(map[string]interface{})
	if err := dsd.LoadAsFormat(r.data, r.format, &values); err != nil {
		return nil, fmt.Errorf("deserialize field values: %w", err)
	}
	r.values = values
	return values, nil
}

// GetAccessor returns an accessor for query matching: over the decoded value
// map when available, else directly over the raw payload.
func (r *Record) GetAccessor() accessor.Accessor {
	if r.values != nil {
		return accessor.NewMapAccessor(r.values)
	}
	if r.format == dsd.JSON {
		return accessor.NewJSONBytesAccessor(&r.data)
	}
	// Fall back to decoding.
	values, err := r.Values()
	if err != nil {
		return nil
	}
	return accessor.NewMapAccessor(values)
}

// Marshal packs the record, including metadata and class names, into a byte
// array for saving in an engine.
func (r *Record) Marshal() ([]byte, error) {
	if r.meta == nil {
		return nil, errors.New("missing meta")
	}

	c := container.New([]byte{formatVersion})

	metaSection, err := dsd.Dump(r.meta, dsd.JSON)
	if err != nil {
		return nil, err
	}
	c.AppendAsBlock(metaSection)

	namesSection, err := dsd.Dump(r.classNames, dsd.JSON)
	if err != nil {
		return nil, err
	}
	c.AppendAsBlock(namesSection)

	c.Append(varint.Pack8(r.format))
	c.Append(r.data)

	return c.CompileData(), nil
}

// Unmarshal unpacks a record that was packed with Marshal. The collection and
// key are taken from the engine key the data was stored under.
func Unmarshal(collection, key string, data []byte) (*Record, error) {
	version, offset, err := varint.Unpack8(data)
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("incompatible record version: %d", version)
	}

	metaSection, n, err := varint.GetNextBlock(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("could not get meta section: %w", err)
	}
	offset += n
	meta := &Meta{}
	if _, err := dsd.Load(metaSection, meta); err != nil {
		return nil, fmt.Errorf("could not unmarshal meta section: %w", err)
	}

	namesSection, n, err := varint.GetNextBlock(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("could not get class names section: %w", err)
	}
	offset += n
	var classNames []string
	if _, err := dsd.Load(namesSection, &classNames); err != nil {
		return nil, fmt.Errorf("could not unmarshal class names section: %w", err)
	}

	format, n, err := varint.Unpack8(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("could not get dsd format: %w", err)
	}
	offset += n

	return &Record{
		classNames: classNames,
		collection: collection,
		key:        key,
		meta:       meta,
		format:     format,
		data:       data[offset:],
	}, nil
}

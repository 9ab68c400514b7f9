package record

import "time"

// Meta holds the storage metadata of a record.
type Meta struct {
	Created  int64
	Modified int64
	Deleted  int64
}

// Update sets the modification stamp, and the creation stamp if unset.
func (m *Meta) Update() {
	now := time.Now().Unix()
	m.Modified = now
	if m.Created == 0 {
		m.Created = now
	}
}

// Reset clears all stamps so the record is treated as new again.
func (m *Meta) Reset() {
	m.Created = 0
	m.Modified = 0
	m.Deleted = 0
}

// Delete marks the record as deleted.
func (m *Meta) Delete() {
	m.Deleted = time.Now().Unix()
}

// IsDeleted returns whether the record is marked as deleted.
func (m *Meta) IsDeleted() bool {
	return m.Deleted > 0
}

// CheckValidity returns whether the record is valid, ie. not deleted.
func (m *Meta) CheckValidity() bool {
	return m.Deleted == 0
}

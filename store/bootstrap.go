package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"

	"github.com/object-layer/object-layer/internal/log"
	"github.com/object-layer/object-layer/record"
	"github.com/object-layer/object-layer/store/engine"
)

// The bootstrap record lives in a reserved collection outside any class key
// space.
const (
	bootstrapCollection = "_meta"
	bootstrapKey        = "store"
)

// Bootstrap identifies a persisted store: its name, data version and a unique
// id minted when the store was first created.
type Bootstrap struct {
	Name    string
	Version int
	ID      string
}

// UpgradeFunc lifts the persisted data of a store to the given version. All
// pending upgrades run in version order inside one transaction; any error
// rolls the whole upgrade back.
type UpgradeFunc func(ctx context.Context, tx *Store, to int) error

// Bootstrap returns the store's bootstrap information.
func (s *Store) Bootstrap() Bootstrap {
	return *s.bootstrap
}

// openBootstrap loads or creates the bootstrap record and reconciles the
// persisted version with the code version.
func (s *Store) openBootstrap(ctx context.Context) error {
	if s.parent != nil {
		return ErrInsideTransaction
	}

	r, err := s.engine.Get(record.MakeKey(bootstrapCollection, bootstrapKey))
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return s.createBootstrap()
	case err != nil:
		return fmt.Errorf("load bootstrap record: %w", err)
	}

	b, err := decodeBootstrap(r)
	if err != nil {
		return err
	}
	if b.Name != s.name {
		return fmt.Errorf("store %q holds data of store %q", s.name, b.Name)
	}

	switch {
	case b.Version > s.version:
		return fmt.Errorf("%w: persisted %d, code %d", ErrDowngrade, b.Version, s.version)
	case b.Version < s.minVersion:
		return fmt.Errorf("%w: persisted %d, minimum %d", ErrUnsupportedVersion, b.Version, s.minVersion)
	case b.Version < s.version:
		return s.upgrade(ctx, b)
	}

	s.bootstrap = b
	return nil
}

func (s *Store) createBootstrap() error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("mint store id: %w", err)
	}

	b := &Bootstrap{
		Name:    s.name,
		Version: s.version,
		ID:      id.String(),
	}
	if err := s.persistBootstrap(s, b); err != nil {
		return err
	}
	s.bootstrap = b
	return nil
}

// upgrade lifts the persisted data from b.Version to the code version. It
// holds the transaction lock for the whole upgrade, so no other transaction
// observes a half-upgraded store.
func (s *Store) upgrade(ctx context.Context, b *Bootstrap) error {
	from, to := b.Version, s.version

	if s.willUpgrade != nil {
		if err := s.willUpgrade(ctx, from, to); err != nil {
			return fmt.Errorf("upgrade of %s rejected: %w", s.name, err)
		}
	}

	err := s.Transaction(ctx, func(ctx context.Context, tx *Store) error {
		for v := from + 1; v <= to; v++ {
			fn, ok := s.upgrades[v]
			if !ok {
				return fmt.Errorf("no upgrade to version %d registered", v)
			}
			if err := fn(ctx, tx, v); err != nil {
				return fmt.Errorf("upgrade to version %d: %w", v, err)
			}
			log.Debugf("store: upgraded %s to version %d", s.name, v)
		}

		upgraded := &Bootstrap{Name: b.Name, Version: to, ID: b.ID}
		return s.persistBootstrap(tx, upgraded)
	})
	if err != nil {
		return err
	}

	s.bootstrap = &Bootstrap{Name: b.Name, Version: to, ID: b.ID}
	log.Infof("store: upgraded %s from version %d to %d", s.name, from, to)

	if s.didUpgrade != nil {
		if err := s.didUpgrade(ctx, from, to); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) persistBootstrap(view *Store, b *Bootstrap) error {
	r, err := record.New(
		[]string{bootstrapCollection},
		bootstrapCollection,
		bootstrapKey,
		map[string]interface{}{
			"name":    b.Name,
			"version": b.Version,
			"id":      b.ID,
		},
	)
	if err != nil {
		return fmt.Errorf("serialize bootstrap record: %w", err)
	}
	r.Meta().Update()
	return view.enginePut(r)
}

func decodeBootstrap(r *record.Record) (*Bootstrap, error) {
	values, err := r.Values()
	if err != nil {
		return nil, fmt.Errorf("decode bootstrap record: %w", err)
	}

	b := &Bootstrap{}
	if name, ok := values["name"].(string); ok {
		b.Name = name
	}
	if id, ok := values["id"].(string); ok {
		b.ID = id
	}
	switch v := values["version"].(type) {
	case int:
		b.Version = v
	case int64:
		b.Version = int(v)
	case float64:
		b.Version = int(v)
	default:
		return nil, fmt.Errorf("bootstrap record has no usable version: %v", values["version"])
	}
	return b, nil
}

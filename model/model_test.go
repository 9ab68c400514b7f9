package model_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/object-layer/object-layer/model"
	"github.com/object-layer/object-layer/schema"
	"github.com/object-layer/object-layer/store"

	_ "github.com/object-layer/object-layer/store/engine/hashmap"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()

	person, err := reg.Define("Person")
	require.NoError(t, err)
	_, err = person.DefinePrimaryKeyField("id", schema.String)
	require.NoError(t, err)
	person.DefineField("name", schema.String)
	person.DefineField("country", schema.String, schema.WithDefault("France"))
	person.DefineField("createdOn", schema.Time, schema.AutoCreated())
	person.DefineField("modifiedOn", schema.Time, schema.AutoModified())
	_, err = person.DefineHasOne("passport", "Passport", "personId")
	require.NoError(t, err)

	musician, err := reg.Define("Musician", schema.Extends("Person"))
	require.NoError(t, err)
	musician.DefineField("instrument", schema.String, schema.WithValidator(func(value interface{}) error {
		if value == "kazoo" {
			return errors.New("not in this house")
		}
		return nil
	}))
	_, err = musician.DefineHasMany("albums", "Album", "musicianId")
	require.NoError(t, err)

	album, err := reg.Define("Album")
	require.NoError(t, err)
	_, err = album.DefinePrimaryKeyField("id", schema.String)
	require.NoError(t, err)
	album.DefineField("title", schema.String)
	album.DefineForeignKeyField("musicianId", schema.String)
	_, err = album.DefineBelongsTo("musician", "Musician", "musicianId")
	require.NoError(t, err)
	_, err = album.DefineHasMany("tracks", "Track", "albumId")
	require.NoError(t, err)

	track, err := reg.Define("Track")
	require.NoError(t, err)
	_, err = track.DefinePrimaryKeyField("id", schema.String)
	require.NoError(t, err)
	track.DefineField("title", schema.String)
	track.DefineForeignKeyField("albumId", schema.String)

	passport, err := reg.Define("Passport")
	require.NoError(t, err)
	_, err = passport.DefinePrimaryKeyField("id", schema.String)
	require.NoError(t, err)
	passport.DefineField("number", schema.String)
	passport.DefineForeignKeyField("personId", schema.String)

	account, err := reg.Define("Account")
	require.NoError(t, err)
	_, err = account.DefinePrimaryKeyField("accountNumber", schema.Integer)
	require.NoError(t, err)
	account.DefineField("owner", schema.String)

	return reg
}

func testStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.New(context.Background(), &store.Config{
		Name: "test",
		URL:  "hashmap://",
	}, testRegistry(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Shutdown()
	})
	return st
}

func TestItemLifecycle(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	people, err := model.New(st, "Person")
	require.NoError(t, err)

	item, err := people.Create(ctx, map[string]interface{}{"name": "Anna"})
	require.NoError(t, err)
	assert.True(t, item.IsNew())
	assert.True(t, item.IsModified(), "a never-persisted item is out of sync with the store")
	assert.Contains(t, item.ModifiedFields(), "name")
	v, _ := item.Get("country")
	assert.Equal(t, "France", v, "defaults are applied on create")

	require.NoError(t, item.Save(ctx, nil))
	assert.False(t, item.IsNew())
	assert.False(t, item.IsModified())

	pk, ok := item.PrimaryKeyValue()
	require.True(t, ok, "save generates a primary key")
	assert.Len(t, pk.(string), 36)

	require.NoError(t, item.Set("name", "Anne"))
	assert.True(t, item.IsModified())
	assert.Equal(t, []string{"name"}, item.ModifiedFields())

	require.NoError(t, item.Save(ctx, nil))
	assert.False(t, item.IsModified())

	loaded, err := people.Get(ctx, pk, nil)
	require.NoError(t, err)
	name, _ := loaded.Get("name")
	assert.Equal(t, "Anne", name)
	assert.False(t, loaded.IsNew())
}

func TestSaveExistingKey(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	people, err := model.New(st, "Person")
	require.NoError(t, err)

	first, err := people.Create(ctx, map[string]interface{}{"id": "p-1", "name": "Anna"})
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, nil))

	second, err := people.Create(ctx, map[string]interface{}{"id": "p-1", "name": "Impostor"})
	require.NoError(t, err)
	err = second.Save(ctx, nil)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	loaded, err := people.Get(ctx, "p-1", nil)
	require.NoError(t, err)
	name, _ := loaded.Get("name")
	assert.Equal(t, "Anna", name, "failed save must not overwrite")
}

func TestValidation(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	musicians, err := model.New(st, "Musician")
	require.NoError(t, err)

	item, err := musicians.Create(ctx, map[string]interface{}{"name": "Marie", "instrument": "kazoo"})
	require.NoError(t, err)

	err = item.Save(ctx, nil)
	valErr := &schema.ValidationError{}
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields, "instrument")
	assert.True(t, item.IsNew(), "failed save keeps the item new")

	// Validation can be disabled per operation.
	require.NoError(t, item.Save(ctx, &store.Options{Validate: false}))
}

func TestAutoTimestamps(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	people, err := model.New(st, "Person")
	require.NoError(t, err)

	item, err := people.Create(ctx, map[string]interface{}{"name": "Anna"})
	require.NoError(t, err)
	require.NoError(t, item.Save(ctx, nil))

	created, ok := item.Get("createdOn")
	require.True(t, ok)
	modified, ok := item.Get("modifiedOn")
	require.True(t, ok)
	assert.IsType(t, time.Time{}, created)
	assert.IsType(t, time.Time{}, modified)

	// A system source leaves the stamps alone.
	require.NoError(t, item.Set("name", "Anne"))
	require.NoError(t, item.Save(ctx, &store.Options{Validate: true, Source: store.SourceRemoteSynchronizer}))
	unchanged, _ := item.Get("modifiedOn")
	assert.Equal(t, modified, unchanged)

	// A regular save refreshes the modification stamp only.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, item.Set("name", "Annette"))
	require.NoError(t, item.Save(ctx, nil))
	after, _ := item.Get("modifiedOn")
	assert.NotEqual(t, modified, after)
	sameCreated, _ := item.Get("createdOn")
	assert.Equal(t, created, sameCreated)
}

func TestHooks(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	people, err := model.New(st, "Person")
	require.NoError(t, err)

	var events []model.Event
	record := func(ctx context.Context, e *model.HookEvent) error {
		events = append(events, e.Event)
		return nil
	}
	people.On(model.DidCreate, record)
	people.On(model.WillSave, record)
	people.On(model.DidSave, record)
	people.On(model.WillDelete, record)
	people.On(model.DidDelete, record)

	item, err := people.Create(ctx, map[string]interface{}{"name": "Anna"})
	require.NoError(t, err)
	require.NoError(t, item.Save(ctx, nil))
	found, err := item.Delete(ctx, nil)
	require.NoError(t, err)
	assert.True(t, found)

	assert.Equal(t, []model.Event{
		model.DidCreate, model.WillSave, model.DidSave, model.WillDelete, model.DidDelete,
	}, events)

	// A willSave error aborts the save transaction; nothing is persisted.
	veto := errors.New("not today")
	people.On(model.WillSave, func(ctx context.Context, e *model.HookEvent) error {
		return veto
	})
	item2, err := people.Create(ctx, map[string]interface{}{"id": "p-2", "name": "Ben"})
	require.NoError(t, err)
	assert.ErrorIs(t, item2.Save(ctx, nil), veto)
	_, err = people.Get(ctx, "p-2", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteMissing(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	people, err := model.New(st, "Person")
	require.NoError(t, err)

	item, err := people.Create(ctx, map[string]interface{}{"id": "p-1", "name": "Anna"})
	require.NoError(t, err)

	found, err := item.Delete(ctx, &store.Options{ErrorIfMissing: false})
	require.NoError(t, err)
	assert.False(t, found)

	_, err = item.Delete(ctx, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPolymorphicFind(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	people, err := model.New(st, "Person")
	require.NoError(t, err)
	musicians, err := model.New(st, "Musician")
	require.NoError(t, err)

	p, err := people.Create(ctx, map[string]interface{}{"name": "Anna"})
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx, nil))

	m, err := musicians.Create(ctx, map[string]interface{}{"name": "Marie", "instrument": "guitar"})
	require.NoError(t, err)
	require.NoError(t, m.Save(ctx, nil))

	// Finding people includes musicians, each with its concrete class.
	items, err := people.Find(ctx, &store.Options{Order: "name"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Person", items[0].Class().Name())
	assert.Equal(t, "Musician", items[1].Class().Name())

	n, err := musicians.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFindAndDeleteHooks(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	people, err := model.New(st, "Person")
	require.NoError(t, err)

	var events []model.Event
	people.On(model.WillDestroy, func(ctx context.Context, e *model.HookEvent) error {
		assert.Nil(t, e.Item, "destroy hooks are collection-level")
		events = append(events, e.Event)
		return nil
	})
	people.On(model.DidDestroy, func(ctx context.Context, e *model.HookEvent) error {
		events = append(events, e.Event)
		return nil
	})

	for _, name := range []string{"Anna", "Ben", "Cleo"} {
		item, err := people.Create(ctx, map[string]interface{}{"name": name})
		require.NoError(t, err)
		require.NoError(t, item.Save(ctx, nil))
	}

	n, err := people.FindAndDelete(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []model.Event{model.WillDestroy, model.DidDestroy}, events)
}

func TestRelations(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	musicians, err := model.New(st, "Musician")
	require.NoError(t, err)

	marie, err := musicians.Create(ctx, map[string]interface{}{"name": "Marie", "instrument": "guitar"})
	require.NoError(t, err)
	require.NoError(t, marie.Save(ctx, nil))
	mariePK, _ := marie.PrimaryKeyValue()

	albums, err := marie.Many("albums")
	require.NoError(t, err)

	// Creating through the proxy presets the foreign key and origin.
	first, err := albums.Create(ctx, map[string]interface{}{"title": "First"})
	require.NoError(t, err)
	fk, _ := first.Get("musicianId")
	assert.Equal(t, mariePK, fk)
	require.NotNil(t, first.Origin())
	assert.Same(t, marie, first.Origin().Item)
	require.NoError(t, first.Save(ctx, nil))

	second, err := albums.Create(ctx, map[string]interface{}{"title": "Second"})
	require.NoError(t, err)
	require.NoError(t, second.Save(ctx, nil))

	n, err := albums.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fetched, err := albums.Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, fetched, 2)

	// The scoped view ignores albums of other musicians.
	other, err := musicians.Create(ctx, map[string]interface{}{"name": "Pierre", "instrument": "piano"})
	require.NoError(t, err)
	require.NoError(t, other.Save(ctx, nil))
	otherAlbums, err := other.Many("albums")
	require.NoError(t, err)
	stray, err := otherAlbums.Create(ctx, map[string]interface{}{"title": "Stray"})
	require.NoError(t, err)
	require.NoError(t, stray.Save(ctx, nil))

	n, err = albums.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Inverse traversal reuses the origin without a store round trip.
	back, err := fetched[0].One("musician")
	require.NoError(t, err)
	owner, err := back.Fetch(ctx)
	require.NoError(t, err)
	assert.Same(t, marie, owner)

	// Belongs-to resolves through the foreign key when there is no origin.
	standalone, err := model.New(st, "Album")
	require.NoError(t, err)
	firstPK, _ := first.PrimaryKeyValue()
	reloaded, err := standalone.Get(ctx, firstPK, nil)
	require.NoError(t, err)
	rel, err := reloaded.One("musician")
	require.NoError(t, err)
	owner, err = rel.Fetch(ctx)
	require.NoError(t, err)
	require.NotNil(t, owner)
	ownerPK, _ := owner.PrimaryKeyValue()
	assert.Equal(t, mariePK, ownerPK)

	// Deleting the musician cascades into the scoped albums.
	found, err := marie.Delete(ctx, nil)
	require.NoError(t, err)
	assert.True(t, found)
	n, err = standalone.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the other musician's album survives")
}

func TestAccountNumbers(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	accounts, err := model.New(st, "Account")
	require.NoError(t, err)

	gofakeit.Seed(1)
	for i := 0; i < 25; i++ {
		item, err := accounts.Create(ctx, map[string]interface{}{"owner": gofakeit.Name()})
		require.NoError(t, err)
		require.NoError(t, item.Save(ctx, nil))

		pk, ok := item.PrimaryKeyValue()
		require.True(t, ok)
		n, ok := pk.(int64)
		require.True(t, ok, "integer primary keys stay integers")
		assert.GreaterOrEqual(t, n, int64(1))
		assert.LessOrEqual(t, n, int64(schema.DefaultMaxIntegerKey))
	}

	n, err := accounts.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestAccountNumberOrder(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	accounts, err := model.New(st, "Account")
	require.NoError(t, err)

	for _, number := range []int{3246, 888, 55498} {
		item, err := accounts.Create(ctx, map[string]interface{}{"accountNumber": number, "owner": "shared"})
		require.NoError(t, err)
		require.NoError(t, item.Save(ctx, nil))
	}

	items, err := accounts.Find(ctx, &store.Options{Order: "accountNumber"})
	require.NoError(t, err)
	assert.Equal(t, []int64{888, 3246, 55498}, accountNumbersOf(t, items))

	items, err = accounts.Find(ctx, &store.Options{Order: "-accountNumber"})
	require.NoError(t, err)
	assert.Equal(t, []int64{55498, 3246, 888}, accountNumbersOf(t, items))
}

func accountNumbersOf(t *testing.T, items []*model.Item) []int64 {
	t.Helper()
	numbers := make([]int64, 0, len(items))
	for _, item := range items {
		pk, ok := item.PrimaryKeyValue()
		require.True(t, ok)
		numbers = append(numbers, pk.(int64))
	}
	return numbers
}

func TestCascadeReachesGrandchildren(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	musicians, err := model.New(st, "Musician")
	require.NoError(t, err)

	marie, err := musicians.Create(ctx, map[string]interface{}{"name": "Marie", "instrument": "guitar"})
	require.NoError(t, err)
	require.NoError(t, marie.Save(ctx, nil))

	albums, err := marie.Many("albums")
	require.NoError(t, err)
	album, err := albums.Create(ctx, map[string]interface{}{"title": "First"})
	require.NoError(t, err)
	require.NoError(t, album.Save(ctx, nil))

	tracks, err := album.Many("tracks")
	require.NoError(t, err)
	track, err := tracks.Create(ctx, map[string]interface{}{"title": "Intro"})
	require.NoError(t, err)
	require.NoError(t, track.Save(ctx, nil))

	found, err := marie.Delete(ctx, nil)
	require.NoError(t, err)
	assert.True(t, found)

	allAlbums, err := model.New(st, "Album")
	require.NoError(t, err)
	n, err := allAlbums.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	allTracks, err := model.New(st, "Track")
	require.NoError(t, err)
	n, err = allTracks.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "cascades follow the removed items' own relations")
}

func TestCacheInvalidationOnMassDelete(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	people, err := model.New(st, "Person", model.WithCacheSize(8))
	require.NoError(t, err)

	item, err := people.Create(ctx, map[string]interface{}{"id": "p-1", "name": "Anna"})
	require.NoError(t, err)
	require.NoError(t, item.Save(ctx, nil))

	// Populate the read cache.
	cached, err := people.Get(ctx, "p-1", nil)
	require.NoError(t, err)
	require.NotNil(t, cached)

	n, err := people.FindAndDelete(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	gone, err := people.Get(ctx, "p-1", &store.Options{ErrorIfMissing: false})
	require.NoError(t, err)
	assert.Nil(t, gone, "a mass delete must not leave stale cached reads")
}

func TestHasOneCreatesMissingTarget(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	people, err := model.New(st, "Person")
	require.NoError(t, err)

	anna, err := people.Create(ctx, map[string]interface{}{"id": "p-1", "name": "Anna"})
	require.NoError(t, err)
	require.NoError(t, anna.Save(ctx, nil))

	rel, err := anna.One("passport")
	require.NoError(t, err)

	// No stored passport yet: the getter hands out an unsaved one with the
	// foreign key preset.
	pass, err := rel.Fetch(ctx)
	require.NoError(t, err)
	require.NotNil(t, pass)
	assert.True(t, pass.IsNew())
	fk, _ := pass.Get("personId")
	assert.Equal(t, "p-1", fk)
	require.NotNil(t, pass.Origin())
	assert.Same(t, anna, pass.Origin().Item)

	again, err := rel.Fetch(ctx)
	require.NoError(t, err)
	assert.Same(t, pass, again)

	require.NoError(t, pass.Set("number", "X-123"))
	require.NoError(t, pass.Save(ctx, nil))

	// A fresh proxy resolves the stored passport now.
	reloaded, err := people.Get(ctx, "p-1", nil)
	require.NoError(t, err)
	rel2, err := reloaded.One("passport")
	require.NoError(t, err)
	stored, err := rel2.Fetch(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.IsNew())
	number, _ := stored.Get("number")
	assert.Equal(t, "X-123", number)
}

func TestDeleteLocatesRecordByForeignKey(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	people, err := model.New(st, "Person")
	require.NoError(t, err)

	anna, err := people.Create(ctx, map[string]interface{}{"id": "p-1", "name": "Anna"})
	require.NoError(t, err)
	require.NoError(t, anna.Save(ctx, nil))

	rel, err := anna.One("passport")
	require.NoError(t, err)
	pass, err := rel.Fetch(ctx)
	require.NoError(t, err)
	require.NoError(t, pass.Set("number", "X-123"))
	require.NoError(t, pass.Save(ctx, nil))

	// A second handle without a key of its own still points at the stored
	// record through its origin.
	ghost, err := rel.Model().Create(ctx, nil)
	require.NoError(t, err)
	_, ok := ghost.PrimaryKeyValue()
	require.False(t, ok)

	found, err := ghost.Delete(ctx, nil)
	require.NoError(t, err)
	assert.True(t, found)

	passports, err := model.New(st, "Passport")
	require.NoError(t, err)
	n, err := passports.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBelongsToAssignment(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	musicians, err := model.New(st, "Musician")
	require.NoError(t, err)
	marie, err := musicians.Create(ctx, map[string]interface{}{"name": "Marie", "instrument": "guitar"})
	require.NoError(t, err)
	require.NoError(t, marie.Save(ctx, nil))
	mariePK, _ := marie.PrimaryKeyValue()

	albums, err := model.New(st, "Album")
	require.NoError(t, err)
	album, err := albums.Create(ctx, map[string]interface{}{"id": "a-1", "title": "Solo"})
	require.NoError(t, err)

	rel, err := album.One("musician")
	require.NoError(t, err)
	unassigned, err := rel.Fetch(ctx)
	require.NoError(t, err)
	assert.Nil(t, unassigned)

	// Assigning an already loaded item points the foreign key at it.
	require.NoError(t, rel.Set(marie))
	fk, _ := album.Get("musicianId")
	assert.Equal(t, mariePK, fk)
	got, err := rel.Fetch(ctx)
	require.NoError(t, err)
	assert.Same(t, marie, got)

	// Only belongs-to relations can be assigned.
	passRel, err := marie.One("passport")
	require.NoError(t, err)
	assert.Error(t, passRel.Set(album))

	// Clearing drops the reference.
	require.NoError(t, rel.Set(nil))
	fk, _ = album.Get("musicianId")
	assert.Nil(t, fk)
	cleared, err := rel.Fetch(ctx)
	require.NoError(t, err)
	assert.Nil(t, cleared)
}

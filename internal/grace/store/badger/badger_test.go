package badger_test

import (
	"context"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/coregate/coregate/internal/grace"
	bstore "github.com/coregate/coregate/internal/grace/store/badger"
)

func openTestDB(t *testing.T) *badgerdb.DB {
	t.Helper()
	opts := badgerdb.DefaultOptions(t.TempDir()).WithLoggingLevel(badgerdb.ERROR)
	db, err := badgerdb.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerStoreCreateReadWriteRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := bstore.New(db, "grace/")
	ctx := context.Background()

	created, err := store.CreateIfAbsent(ctx, "obj")
	require.NoError(t, err)
	require.True(t, created)

	createdAgain, err := store.CreateIfAbsent(ctx, "obj")
	require.NoError(t, err)
	require.False(t, createdAgain)

	epochs, version, err := store.Read(ctx, "obj")
	require.NoError(t, err)
	require.Equal(t, uint64(1), epochs.CurrentEpoch)

	newVersion, err := store.Write(ctx, "obj", grace.Epochs{CurrentEpoch: 2, ReclaimEpoch: 1}, version)
	require.NoError(t, err)
	require.NotEqual(t, version, newVersion)

	epochs, _, err = store.Read(ctx, "obj")
	require.NoError(t, err)
	require.Equal(t, uint64(2), epochs.CurrentEpoch)
	require.Equal(t, uint64(1), epochs.ReclaimEpoch)
}

func TestBadgerStoreWriteConflictOnStaleVersion(t *testing.T) {
	db := openTestDB(t)
	store := bstore.New(db, "grace/")
	ctx := context.Background()

	_, err := store.CreateIfAbsent(ctx, "obj")
	require.NoError(t, err)
	_, version, err := store.Read(ctx, "obj")
	require.NoError(t, err)

	_, err = store.Write(ctx, "obj", grace.Epochs{CurrentEpoch: 2}, version)
	require.NoError(t, err)

	_, err = store.Write(ctx, "obj", grace.Epochs{CurrentEpoch: 3}, version)
	require.ErrorIs(t, err, grace.ErrConflict)
}

func TestBadgerStoreUpdateOmapRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := bstore.New(db, "grace/")
	ctx := context.Background()

	_, err := store.CreateIfAbsent(ctx, "obj")
	require.NoError(t, err)
	_, _, version, err := store.ReadPlusOmap(ctx, "obj")
	require.NoError(t, err)

	_, err = store.UpdateOmap(ctx, "obj", map[string]grace.Flags{"m1": grace.NeedGrace}, nil, version)
	require.NoError(t, err)

	_, members, _, err := store.ReadPlusOmap(ctx, "obj")
	require.NoError(t, err)
	require.Equal(t, grace.NeedGrace, members["m1"])
}

func TestBadgerStoreReadMissingObjectReturnsErrNotFound(t *testing.T) {
	db := openTestDB(t)
	store := bstore.New(db, "grace/")
	_, _, err := store.Read(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, grace.ErrNotFound)
}

package vault

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	x, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func TestIndex_PutGetDelete(t *testing.T) {
	x := openTestIndex(t)
	created := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	item := Item{
		ID:            uuid.New().String(),
		CreatedAt:     created,
		InputType:     "file",
		Format:        "png",
		Width:         640,
		Height:        480,
		PlainSize:     12345,
		Algorithm:     Algorithm,
		ContainerFile: "a.bin",
		KeyFile:       "a_key.txt",
	}

	require.NoError(t, x.Put(item))

	got, err := x.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, item, got)

	require.NoError(t, x.Delete(item.ID))
	_, err = x.Get(item.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)

	assert.ErrorIs(t, x.Delete(item.ID), ErrItemNotFound)
}

func TestIndex_ListSortedOldestFirst(t *testing.T) {
	x := openTestIndex(t)
	base := time.Now().UTC()

	// Insert out of order.
	for _, offset := range []int{3, 1, 2} {
		require.NoError(t, x.Put(Item{
			ID:        uuid.New().String(),
			CreatedAt: base.Add(time.Duration(offset) * time.Minute),
		}))
	}

	items, err := x.List()
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i := 1; i < len(items); i++ {
		assert.True(t, items[i-1].CreatedAt.Before(items[i].CreatedAt))
	}
}

func TestIndex_ListEmpty(t *testing.T) {
	x := openTestIndex(t)

	items, err := x.List()
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestIndex_ListSkipsCorruptRecords(t *testing.T) {
	x := openTestIndex(t)
	require.NoError(t, x.Put(Item{ID: "good", CreatedAt: time.Now()}))

	err := x.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).Put([]byte("bad"), []byte("{not json"))
	})
	require.NoError(t, err)

	items, err := x.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "good", items[0].ID)

	_, err = x.Get("bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse index entry")
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	x, err := OpenIndex(path)
	require.NoError(t, err)
	require.NoError(t, x.Put(Item{ID: "persist", Format: "png"}))
	require.NoError(t, x.Close())

	x, err = OpenIndex(path)
	require.NoError(t, err)
	defer x.Close()

	got, err := x.Get("persist")
	require.NoError(t, err)
	assert.Equal(t, "png", got.Format)
}

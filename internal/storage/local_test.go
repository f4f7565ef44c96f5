package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutListDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "uploads")
	require.NoError(t, err)

	ref, err := store.Put(ctx, "events/a.jpg", strings.NewReader("data"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/events/a.jpg", ref)

	content, err := os.ReadFile(filepath.Join(store.Root(), "events", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))

	objects, err := store.List(ctx, "events")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "events/a.jpg", objects[0].Key)
	assert.Equal(t, ref, objects[0].Ref)

	require.NoError(t, store.Delete(ctx, ref))
	_, err = os.Stat(filepath.Join(store.Root(), "events", "a.jpg"))
	assert.True(t, os.IsNotExist(err))

	// повторное удаление не ошибка
	assert.NoError(t, store.Delete(ctx, ref))
}

func TestLocalStore_ListMissingPrefix(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	objects, err := store.List(context.Background(), "profiles")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestLocalStore_RejectsForeignRefs(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, store.Delete(ctx, "https://elsewhere/x.jpg"), ErrInvalidRef)
	assert.ErrorIs(t, store.Delete(ctx, "/uploads/../secret"), ErrInvalidRef)

	_, err = store.Put(ctx, "../escape.jpg", strings.NewReader("x"), "image/jpeg")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

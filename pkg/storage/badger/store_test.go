package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/traceboard/pkg/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(config.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	settings, err := store.Settings(ctx, "tenant-1")
	require.NoError(t, err)
	require.Equal(t, Settings{}, settings)

	enabled, err := store.ColumnarEnabled(ctx, "tenant-1")
	require.NoError(t, err)
	require.False(t, enabled)

	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetSettings(ctx, "tenant-1", Settings{ColumnarEnabled: true, UpdatedAt: updated}))

	settings, err = store.Settings(ctx, "tenant-1")
	require.NoError(t, err)
	require.True(t, settings.ColumnarEnabled)
	require.True(t, updated.Equal(settings.UpdatedAt))

	enabled, err = store.ColumnarEnabled(ctx, "tenant-1")
	require.NoError(t, err)
	require.True(t, enabled)

	enabled, err = store.ColumnarEnabled(ctx, "tenant-2")
	require.NoError(t, err)
	require.False(t, enabled)

	require.Error(t, store.SetSettings(ctx, "", Settings{}))
}

func TestSetSettingsStampsUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SetSettings(ctx, "tenant-1", Settings{ColumnarEnabled: true}))
	settings, err := store.Settings(ctx, "tenant-1")
	require.NoError(t, err)
	require.False(t, settings.UpdatedAt.IsZero())
}

func TestLabels(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.PutLabel(ctx, "tenant-1", "topics", "t1", "Billing"))
	require.NoError(t, store.PutLabel(ctx, "tenant-1", "topics", "t2", "Refunds"))
	require.NoError(t, store.PutLabel(ctx, "tenant-1", "topics", "t1", "Invoices"))
	require.NoError(t, store.PutLabel(ctx, "tenant-1", "models", "m1", "Large"))
	require.NoError(t, store.PutLabel(ctx, "tenant-10", "topics", "t9", "Other tenant"))

	labels, err := store.Labels(ctx, "tenant-1", "topics")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"t1": "Invoices", "t2": "Refunds"}, labels)

	labels, err = store.Labels(ctx, "tenant-2", "topics")
	require.NoError(t, err)
	require.Empty(t, labels)

	require.Error(t, store.PutLabel(ctx, "tenant-1", "", "t1", "x"))
}

func TestHealth(t *testing.T) {
	store, err := NewStore(config.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, store.Health(context.Background()))
	require.NoError(t, store.Close())
	require.Error(t, store.Health(context.Background()))
}

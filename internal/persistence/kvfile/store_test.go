package kvfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"coinboard/pkg/storage"
)

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "coinboard.msgpack")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, storage.SetJSON(ctx, store, storage.KeySelectedCoins, []string{"bitcoin", "solana"}))
	require.NoError(t, store.Set(ctx, storage.KeyLastUpdated, "1700000000000"))
	require.NoError(t, store.Delete(ctx, storage.KeyLastUpdated))
	require.NoError(t, store.Delete(ctx, "missing"))

	reopened, err := Open(path)
	require.NoError(t, err)
	var ids []string
	ok, err := storage.GetJSON(ctx, reopened, storage.KeySelectedCoins, &ids)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"bitcoin", "solana"}, ids)

	_, ok, err = reopened.Get(ctx, storage.KeyLastUpdated)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpenRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := Open("")
	require.Error(t, err)

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte{0xc1}, 0o600))
	_, err = Open(garbage)
	require.ErrorContains(t, err, "decode")

	future := filepath.Join(dir, "future")
	data, err := msgpack.Marshal(snapshot{Version: 99})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(future, data, 0o600))
	_, err = Open(future)
	require.ErrorContains(t, err, "unsupported version 99")
}

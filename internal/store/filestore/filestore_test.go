package filestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"
)

func TestBlobStoreMemstore(t *testing.T) {
	ctx := context.Background()
	b := New(ekv.MakeMemstore())

	got, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, b.Put(ctx, "k1", []byte("payload")))
	got, err = b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	require.NoError(t, b.Delete(ctx, "k1"))
	got, err = b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, b.Delete(ctx, "k1"))
}

func TestBlobStoreFilestoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := Open(dir, "hunter2")
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "k1", []byte{0xde, 0xad}))

	reopened, err := Open(dir, "hunter2")
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, got)
}

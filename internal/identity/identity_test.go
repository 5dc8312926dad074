package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateKeyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.key")

	priv1, err := LoadOrCreateKey(path)
	require.NoError(t, err)

	priv2, err := LoadOrCreateKey(path)
	require.NoError(t, err)

	assert.Equal(t, priv1, priv2)
}

func TestEnsureRecordIsIdempotent(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "identity.key")
	recordPath := filepath.Join(t.TempDir(), "identity.json")

	priv, err := LoadOrCreateKey(keyPath)
	require.NoError(t, err)

	require.NoError(t, EnsureRecord(recordPath, priv))
	require.NoError(t, EnsureRecord(recordPath, priv))
}

func TestEnsureRecordRejectsBadKeySize(t *testing.T) {
	err := EnsureRecord(filepath.Join(t.TempDir(), "identity.json"), []byte("short"))
	assert.Error(t, err)
}

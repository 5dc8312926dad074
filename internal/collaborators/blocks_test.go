package collaborators

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veltarosnet/veltaros/internal/blockchain"
)

func newBlocksForTest(t *testing.T) *Blocks {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocks.json")
	return NewBlocks(testLog(), path)
}

func emptyBlockRaw(t *testing.T, prev [32]byte) json.RawMessage {
	t.Helper()
	b, err := blockchain.BuildBlock(prev, nil)
	require.NoError(t, err)
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	return raw
}

func TestBlocksObjectNormalizeAdvancesHeight(t *testing.T) {
	blocks := newBlocksForTest(t)

	raw := emptyBlockRaw(t, [32]byte{})
	_, blockID, err := blocks.ObjectNormalize(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, blockID)

	h, err := blocks.Height()
	require.NoError(t, err)
	assert.Equal(t, 1, h)
}

func TestBlocksObjectNormalizeRejectsInvalidBlock(t *testing.T) {
	blocks := newBlocksForTest(t)

	_, _, err := blocks.ObjectNormalize(json.RawMessage(`{"Header":{"Timestamp":0},"Transactions":[]}`))
	assert.Error(t, err)
}

func TestBlocksLoadAfterAndCommonBlock(t *testing.T) {
	blocks := newBlocksForTest(t)

	raw1 := emptyBlockRaw(t, [32]byte{})
	_, id1, err := blocks.ObjectNormalize(raw1)
	require.NoError(t, err)

	raw2 := emptyBlockRaw(t, [32]byte{1})
	_, id2, err := blocks.ObjectNormalize(raw2)
	require.NoError(t, err)

	after, err := blocks.LoadBlocksAfter(id1, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)

	common, err := blocks.CommonBlock([]string{id1, "nonexistent"})
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(common, &stored))
	assert.Equal(t, id1, stored["hash"])

	_ = id2
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeFlagsDefaults(t *testing.T) {
	parsed, err := ParseNodeFlags(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:4000", parsed.Config.Network.ListenAddr)
	assert.Equal(t, "veltaros-mainnet", parsed.Config.Network.Nethash)
	assert.Equal(t, 20, parsed.Config.Network.MaxUpdatePeers)
	assert.True(t, parsed.Config.API.Enabled)
	assert.Equal(t, "info", parsed.Config.Log.Level)
}

func TestParseNodeFlagsOverridesDefaults(t *testing.T) {
	parsed, err := ParseNodeFlags([]string{
		"--network.listenAddr=0.0.0.0:5000",
		"--network.seeds=1.1.1.1:4000,2.2.2.2:4000",
		"--log.level=debug",
		"--api.enabled=false",
	})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", parsed.Config.Network.ListenAddr)
	assert.Equal(t, []string{"1.1.1.1:4000", "2.2.2.2:4000"}, parsed.Config.Network.Seeds)
	assert.Equal(t, "debug", parsed.Config.Log.Level)
	assert.False(t, parsed.Config.API.Enabled)
}

func TestParseNodeFlagsRejectsInvalidLogLevel(t *testing.T) {
	_, err := ParseNodeFlags([]string{"--log.level=verbose"})
	assert.Error(t, err)
}

func TestParseNodeFlagsRejectsMaxUpdatePeersOutOfRange(t *testing.T) {
	_, err := ParseNodeFlags([]string{"--network.maxUpdatePeers=0"})
	assert.Error(t, err)
}

package peers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectIdempotent(t *testing.T) {
	raw := RawPeer{IP: "3232235521", Port: "8000", OS: "linux", Version: "1.2.3"}
	first := Inspect(raw)
	assert.Equal(t, "192.168.0.1", first.IP)

	second := Inspect(RawPeer{
		IP:      first.IP,
		Port:    first.Port,
		OS:      first.OS,
		Version: first.Version,
	})
	assert.Equal(t, first.IP, second.IP)
	assert.Equal(t, first.Port, second.Port)
	assert.Equal(t, first.OS, second.OS)
	assert.Equal(t, first.Version, second.Version)
}

func TestInspectDecimalIP(t *testing.T) {
	p := Inspect(RawPeer{IP: "3232235521", Port: 8000})
	assert.Equal(t, "192.168.0.1", p.IP)
}

func TestInspectNaNPort(t *testing.T) {
	p := Inspect(RawPeer{IP: "1.1.1.1", Port: "not-a-number"})
	assert.Equal(t, 0, p.Port)
}

func TestInspectDefaults(t *testing.T) {
	p := Inspect(RawPeer{IP: "1.1.1.1", Port: 8000})
	assert.Equal(t, defaultOS, p.OS)
	assert.Equal(t, defaultVersion, p.Version)
	assert.False(t, p.HasOS)
	assert.False(t, p.HasVersion)
}

func TestPeerString(t *testing.T) {
	assert.Equal(t, "1.1.1.1:8000", Peer{IP: "1.1.1.1", Port: 8000}.String())
	assert.Equal(t, "unknown", Peer{}.String())
}

func TestPeerMarshalJSONUsesLowercaseWireContractAndHidesBookkeeping(t *testing.T) {
	p := Peer{
		IP: "1.1.1.1", Port: 8000, State: StateConnected,
		OS: "linux", Version: "1.0.0",
		HasState: true, HasOS: true, HasVersion: true,
		DappID: "dapp-1", HasDappID: true,
	}

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "1.1.1.1", decoded["ip"])
	assert.Equal(t, float64(8000), decoded["port"])
	assert.Equal(t, float64(StateConnected), decoded["state"])
	assert.Equal(t, "linux", decoded["os"])
	assert.Equal(t, "1.0.0", decoded["version"])
	assert.Nil(t, decoded["clock"])
	assert.Contains(t, decoded, "clock")
	assert.NotContains(t, decoded, "HasState")
	assert.NotContains(t, decoded, "HasOS")
	assert.NotContains(t, decoded, "HasVersion")
	assert.NotContains(t, decoded, "HasDappID")
	assert.NotContains(t, decoded, "DappID")
}

func TestPeerMarshalJSONEmitsClockWhenBanned(t *testing.T) {
	p := Peer{IP: "1.1.1.1", Port: 8000, State: StateBanned, ClockMillis: 1700000000000}

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(1700000000000), decoded["clock"])
}

func TestPeerUnmarshalJSONRoundTrips(t *testing.T) {
	p := Peer{
		IP: "2.2.2.2", Port: 9000, State: StateBanned,
		OS: "windows", Version: "2.0.0", ClockMillis: 123456,
		Dapps: []string{"dapp-a"},
	}

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded Peer
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, p.IP, decoded.IP)
	assert.Equal(t, p.Port, decoded.Port)
	assert.Equal(t, p.State, decoded.State)
	assert.Equal(t, p.OS, decoded.OS)
	assert.Equal(t, p.Version, decoded.Version)
	assert.Equal(t, p.ClockMillis, decoded.ClockMillis)
	assert.Equal(t, p.Dapps, decoded.Dapps)
}

func TestVersionLess(t *testing.T) {
	assert.True(t, VersionLess("1.2.3", "1.10.0"))
	assert.False(t, VersionLess("1.10.0", "1.2.3"))
	assert.False(t, VersionLess("1.2.3", "1.2.3"))
	assert.True(t, VersionLess("0.0.1", "0.5.0"))
}

package transport

import (
	"context"
	"net"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veltarosnet/veltaros/internal/peers"
	"github.com/veltarosnet/veltaros/internal/schema"
)

// emptyDirectory is a fakeDirectory whose List always reports no candidates,
// exercising GetFromRandomPeer's exhausted-retries path.
type emptyDirectory struct {
	fakeDirectory
	listCalls int
}

func (d *emptyDirectory) List(limit int, dappID string) ([]peers.Peer, error) {
	d.listCalls++
	return nil, nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransportError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, codeTimeout},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, codeUnavailable},
		{"host unreachable", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)}, codeUnavailable},
		{"dns failure", &net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host", Name: "x"}}, codeUnavailable},
		{"reset mid-stream", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, codeConnection},
		{"anything else", assert.AnError, codeConnection},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyTransportError(tc.err))
		})
	}
}

func TestOnOutboundFailureRemovesOrBansByCode(t *testing.T) {
	peer := peers.Peer{IP: "9.9.9.9", Port: 7000}

	for _, code := range []string{codeUnavailable, codeTimeout} {
		dir := &fakeDirectory{}
		tr := newTestTransport(dir, &fakeSchema{}, nil, nil)
		tr.onOutboundFailure(peer, code)
		require.Len(t, dir.removed, 1, "code %s should remove", code)
		assert.Empty(t, dir.banned)
	}

	dir := &fakeDirectory{}
	tr := newTestTransport(dir, &fakeSchema{}, nil, nil)
	tr.onOutboundFailure(peer, codeConnection)
	require.Len(t, dir.banned, 1)
	assert.Equal(t, transportBanMins*60, dir.banSecs)
	assert.Empty(t, dir.removed)
}

func TestGetFromRandomPeerFailsAfterExhaustingRetries(t *testing.T) {
	dir := &emptyDirectory{}
	tr := newTestTransport(&dir.fakeDirectory, &fakeSchema{}, nil, nil)
	tr.dir = dir

	resp, err := tr.GetFromRandomPeer(context.Background(), RequestOptions{API: "/list"})

	assert.Nil(t, resp)
	assert.Error(t, err)
	assert.Equal(t, randomPeerRetries, dir.listCalls)
}

// TestFetchPeerListRoundTripsThroughRealSchemaValidation drives a real
// /peer/list request through an httptest.Server and a real schema.Bag on
// both ends (no fakes), proving Peer's wire encoding actually satisfies
// PeerListSchema and that FetchPeerList extracts the right fields back out.
func TestFetchPeerListRoundTripsThroughRealSchemaValidation(t *testing.T) {
	serverSchema, err := schema.NewBag()
	require.NoError(t, err)
	clientSchema, err := schema.NewBag()
	require.NoError(t, err)

	serverDir := &fakeDirectory{
		listPeer: []peers.Peer{
			{IP: "9.9.9.9", Port: 7000, State: peers.StateConnected, OS: "linux", Version: "1.0.0"},
		},
	}
	serverTransport := newTestTransport(serverDir, serverSchema, nil, nil)

	ts := httptest.NewServer(serverTransport.Router())
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	clientDir := &fakeDirectory{
		listPeer: []peers.Peer{{IP: host, Port: port, State: peers.StateConnected}},
	}
	clientTransport := newTestTransport(clientDir, clientSchema, nil, nil)

	out, err := clientTransport.FetchPeerList(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "9.9.9.9", out[0].IP)
	assert.Equal(t, float64(7000), out[0].Port)
	assert.Equal(t, "linux", out[0].OS)
	assert.Equal(t, "1.0.0", out[0].Version)
	require.NotNil(t, out[0].State)
	assert.Equal(t, int(peers.StateConnected), *out[0].State)
}

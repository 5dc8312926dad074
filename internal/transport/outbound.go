package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/veltarosnet/veltaros/internal/peers"
)

const (
	codeHeaders     = "EHEADERS"
	codeNethash     = "ENETHASH"
	codeUnavailable = "EUNAVAILABLE"
	codeTimeout     = "ETIMEOUT"
	codeConnection  = "ECONNECTION"

	randomPeerRetries = 20
	broadcastConc     = 3
	transportBanMins  = 10
)

// RequestOptions describes one outbound peer RPC call.
type RequestOptions struct {
	API     string // appended to /peer, e.g. "/list"
	Method  string
	Headers map[string]string
	Data    any
}

// TransportError wraps an outbound RPC failure with the code that drives the
// peer-state decision.
type TransportError struct {
	Code    string
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// GetFromPeer issues one outbound request to peer and applies the response
// policy: bad status or framing failure removes the peer; a version/nethash
// match enqueues an update with the reported fields.
func (t *Transport) GetFromPeer(ctx context.Context, peer peers.Peer, opts RequestOptions) (map[string]any, error) {
	if !t.isLoaded() {
		return nil, errors.New("Blockchain is loading")
	}

	path := opts.API
	if path == "" {
		path = "/list"
	}
	url := fmt.Sprintf("http://%s:%d/peer%s", peer.IP, peer.Port, path)

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Data != nil {
		raw, err := json.Marshal(opts.Data)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range t.headers.AsMap() {
		req.Header.Set(k, toHeaderString(v))
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		code := classifyTransportError(err)
		t.onOutboundFailure(peer, code)
		return nil, &TransportError{Code: code, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_ = t.dir.Remove(peer.IP, peer.Port)
		return nil, &TransportError{Code: "ERESPONSE", Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	respHeaders := map[string]any{
		"ip":      peer.IP,
		"port":    headerIntFromResponse(resp, "port", peer.Port),
		"os":      resp.Header.Get("x-os"),
		"version": resp.Header.Get("x-version"),
		"nethash": resp.Header.Get("x-nethash"),
	}
	if t.schema != nil {
		if err := t.schema.ValidateHeader(respHeaders); err != nil {
			_ = t.dir.Remove(peer.IP, peer.Port)
			return nil, &TransportError{Code: codeHeaders, Message: err.Error()}
		}
	}

	nethash, _ := respHeaders["nethash"].(string)
	if nethash != t.nethash {
		_ = t.dir.Remove(peer.IP, peer.Port)
		return nil, &TransportError{Code: codeNethash, Message: "nethash mismatch"}
	}

	version, _ := respHeaders["version"].(string)
	if version == t.current {
		t.dir.Update(peers.Peer{
			IP: peer.IP, Port: peer.Port,
			OS: resp.Header.Get("x-os"), HasOS: true,
			Version: version, HasVersion: true,
		})
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, nil
	}
	return decoded, nil
}

func headerIntFromResponse(resp *http.Response, name string, fallback int) int {
	v := resp.Header.Get("x-" + name)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func isTimeoutErr(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// classifyTransportError maps an outbound dial/roundtrip error to the code
// that drives the peer-state decision: ETIMEOUT for deadline expiry,
// EUNAVAILABLE when the peer plainly isn't there (refused, unreachable,
// unresolvable), ECONNECTION for everything else (reset mid-stream, EOF,
// malformed response), which draws the 10-minute ban.
func classifyTransportError(err error) string {
	if isTimeoutErr(err) {
		return codeTimeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.EHOSTUNREACH, syscall.ENETUNREACH:
			return codeUnavailable
		}
		return codeConnection
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return codeUnavailable
	}

	return codeConnection
}

// onOutboundFailure applies the transport-error policy: unavailable or
// timeout removes the peer; every other transport-level code bans it for
// 10 minutes.
func (t *Transport) onOutboundFailure(peer peers.Peer, code string) {
	switch code {
	case codeUnavailable, codeTimeout:
		_ = t.dir.Remove(peer.IP, peer.Port)
	default:
		_ = t.dir.SetState(peer.IP, peer.Port, peers.StateBanned, transportBanMins*60)
	}
}

// GetFromRandomPeer picks one peer from the directory and calls it,
// retrying up to 20 times with a fresh candidate on each failure.
func (t *Transport) GetFromRandomPeer(ctx context.Context, opts RequestOptions) (map[string]any, error) {
	for attempt := 0; attempt < randomPeerRetries; attempt++ {
		candidates, err := t.dir.List(1, "")
		if err != nil || len(candidates) == 0 {
			continue
		}
		resp, err := t.GetFromPeer(ctx, candidates[0], opts)
		if err == nil {
			return resp, nil
		}
	}
	return nil, errors.New("No reachable peers in db")
}

// FetchPeerList implements peers.RandomPeerFetcher: it is the concrete
// getFromRandomPeer call the refresh cycle drives, hitting /peer/list.
func (t *Transport) FetchPeerList(ctx context.Context) ([]peers.RawPeer, error) {
	resp, err := t.GetFromRandomPeer(ctx, RequestOptions{API: "/list"})
	if err != nil {
		return nil, err
	}

	rawList, _ := resp["peers"].([]any)
	if t.schema != nil {
		if err := t.schema.ValidatePeerList(rawList); err != nil {
			return nil, errors.Wrap(err, "transport: invalid peer list response")
		}
	}

	out := make([]peers.RawPeer, 0, len(rawList))
	for _, item := range rawList {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		raw := peers.RawPeer{
			IP:      m["ip"],
			Port:    m["port"],
			OS:      fmt.Sprintf("%v", m["os"]),
			Version: fmt.Sprintf("%v", m["version"]),
		}
		if s, ok := m["state"].(float64); ok {
			n := int(s)
			raw.State = &n
		}
		out = append(out, raw)
	}
	return out, nil
}

// Broadcast fans a request out to up to limit peers (optionally restricted
// to a dapp) with bounded concurrency, ignoring individual failures.
func (t *Transport) Broadcast(ctx context.Context, limit int, dappID string, opts RequestOptions) {
	candidates, err := t.dir.List(limit, dappID)
	if err != nil || len(candidates) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, broadcastConc)
	for _, peer := range candidates {
		peer := peer
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			_, _ = t.GetFromPeer(gctx, peer, opts)
			return nil
		})
	}
	_ = g.Wait()
}

// onSignature/onUnconfirmedTransaction/onNewBlock/onMessage are the event
// hooks: broadcast (if requested); all but onMessage also emit a socket-room
// event. Broadcasting
// does not await completion of the underlying HTTP calls.
func (t *Transport) OnSignature(ctx context.Context, signature any, broadcast bool) {
	t.room.Emit("signature/change", signature)
	if broadcast {
		go t.Broadcast(ctx, 100, "", RequestOptions{API: "/signatures", Method: http.MethodPost, Data: signature})
	}
}

func (t *Transport) OnUnconfirmedTransaction(ctx context.Context, tx any, broadcast bool) {
	t.room.Emit("transactions/change", tx)
	if broadcast {
		go t.Broadcast(ctx, 100, "", RequestOptions{API: "/transactions", Method: http.MethodPost, Data: tx})
	}
}

func (t *Transport) OnNewBlock(ctx context.Context, block any, broadcast bool) {
	t.room.Emit("blocks/change", block)
	if broadcast {
		go t.Broadcast(ctx, 100, "", RequestOptions{API: "/blocks", Method: http.MethodPost, Data: map[string]any{"block": block}})
	}
}

func (t *Transport) OnMessage(ctx context.Context, dappID string, message any, broadcast bool) {
	if broadcast {
		go t.Broadcast(ctx, 100, dappID, RequestOptions{API: "/dapp/message", Method: http.MethodPost, Data: message})
	}
}

// Package peers implements the durable peer directory: normalization, ranked
// listing, ban lifecycle, dapp associations, seed bootstrap and the
// peer-exchange refresh cycle.
package peers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// State is the peer connection state.
type State int

const (
	StateBanned       State = 0
	StateDisconnected State = 1
	StateConnected    State = 2
)

const (
	defaultOS      = "unknown"
	defaultVersion = "0.0.0"

	minOSLen      = 1
	maxOSLen      = 64
	minVersionLen = 5
	maxVersionLen = 12
)

// Peer is the directory's unit of record. (ip, port) is the primary key.
type Peer struct {
	IP      string
	Port    int
	State   State
	OS      string
	Version string
	// ClockMillis is the absolute millisecond timestamp a ban expires at.
	// Zero means "not banned".
	ClockMillis int64
	Dapps       []string

	// HasState/HasOS/HasVersion/HasDappID track which optional fields were
	// present on the raw input, so Update can distinguish "write this field"
	// from "leave it untouched" per the upsert contract.
	HasState   bool
	HasOS      bool
	HasVersion bool
	DappID     string
	HasDappID  bool
}

// String renders the peer's "ip:port" form used for logging, or "unknown"
// when the IP is absent.
func (p Peer) String() string {
	if p.IP == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

// Key returns the (ip, port) primary key as a comparable value.
func (p Peer) Key() PeerKey {
	return PeerKey{IP: p.IP, Port: p.Port}
}

// wirePeer is the peer's wire shape: lowercase field names, clock null when
// the peer isn't banned, and no trace of the directory's internal
// bookkeeping (Has*/DappID) flags.
type wirePeer struct {
	IP      string   `json:"ip"`
	Port    int      `json:"port"`
	State   State    `json:"state"`
	OS      string   `json:"os"`
	Version string   `json:"version"`
	Clock   *int64   `json:"clock"`
	Dapps   []string `json:"dapps"`
}

// MarshalJSON implements the wire contract: lowercase field names, a null
// clock when the peer isn't banned, and no internal bookkeeping fields.
func (p Peer) MarshalJSON() ([]byte, error) {
	w := wirePeer{
		IP:      p.IP,
		Port:    p.Port,
		State:   p.State,
		OS:      p.OS,
		Version: p.Version,
		Dapps:   p.Dapps,
	}
	if p.ClockMillis != 0 {
		w.Clock = &p.ClockMillis
	}
	if w.Dapps == nil {
		w.Dapps = []string{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a peer from its wire shape.
func (p *Peer) UnmarshalJSON(data []byte) error {
	var w wirePeer
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Peer{
		IP:      w.IP,
		Port:    w.Port,
		State:   w.State,
		OS:      w.OS,
		Version: w.Version,
		Dapps:   w.Dapps,
	}
	if w.Clock != nil {
		p.ClockMillis = *w.Clock
	}
	return nil
}

// PeerKey is the (ip, port) primary key.
type PeerKey struct {
	IP   string
	Port int
}

// RawPeer is an unnormalized peer record as it arrives from the wire, a
// config file, or a DB row: numeric fields may be strings, IPs may be
// decimal longs, anything may be absent.
type RawPeer struct {
	IP      any    `json:"ip"`
	Port    any    `json:"port"`
	State   *int   `json:"state"`
	OS      string `json:"os"`
	Version string `json:"version"`
	DappID  string `json:"dappid"`
}

// Inspect normalizes a raw peer record. It is pure and never fails: it
// coerces whatever it is given into a well-formed Peer, filling defaults
// for missing fields. Decimal-digit-only IPs are converted from a 32-bit
// long to dotted-quad form.
func Inspect(raw RawPeer) Peer {
	p := Peer{}

	p.IP = normalizeIP(raw.IP)
	p.Port = normalizePort(raw.Port)

	if raw.State != nil {
		p.State = State(*raw.State)
		p.HasState = true
	}

	p.OS = normalizeOS(raw.OS)
	p.HasOS = strings.TrimSpace(raw.OS) != ""

	p.Version = normalizeVersion(raw.Version)
	p.HasVersion = strings.TrimSpace(raw.Version) != ""

	if strings.TrimSpace(raw.DappID) != "" {
		p.DappID = strings.TrimSpace(raw.DappID)
		p.HasDappID = true
	}

	return p
}

func normalizeIP(v any) string {
	s := fmt.Sprintf("%v", v)
	s = strings.TrimSpace(s)
	if s == "" || s == "<nil>" {
		return ""
	}
	if isDecimalDigits(s) {
		if n, err := strconv.ParseUint(s, 10, 32); err == nil {
			return longToDottedQuad(uint32(n))
		}
	}
	return s
}

func isDecimalDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func longToDottedQuad(n uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d",
		byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func normalizePort(v any) int {
	switch t := v.(type) {
	case int:
		return clampPort(t)
	case int64:
		return clampPort(int(t))
	case float64:
		return clampPort(int(t))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return clampPort(n)
	case nil:
		return 0
	default:
		return 0
	}
}

func clampPort(n int) int {
	if n < 0 || n > 65535 {
		return 0
	}
	return n
}

func normalizeOS(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < minOSLen || len(s) > maxOSLen {
		return defaultOS
	}
	return s
}

func normalizeVersion(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < minVersionLen || len(s) > maxVersionLen {
		return defaultVersion
	}
	return s
}

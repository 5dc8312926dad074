// Package transport implements the inbound /peer HTTP API and the outbound
// peer RPC client: the header contract, framing middleware, routes table,
// and retrying broadcast/random-peer selection.
package transport

// Headers is the {os, version, port, nethash} contract: included on every
// outbound request and validated on every inbound request.
type Headers struct {
	OS      string `json:"os"`
	Version string `json:"version"`
	Port    int    `json:"port"`
	Nethash string `json:"nethash"`
	IP      string `json:"ip,omitempty"`
}

// AsMap flattens Headers for schema validation and HTTP header assembly.
func (h Headers) AsMap() map[string]any {
	m := map[string]any{
		"os":      h.OS,
		"version": h.Version,
		"port":    h.Port,
		"nethash": h.Nethash,
	}
	if h.IP != "" {
		m["ip"] = h.IP
	}
	return m
}

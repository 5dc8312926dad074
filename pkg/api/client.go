// Package api is the public client for a running node's HTTP surface: the
// /peer routes a peer would call and the /api/peers management routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a small HTTP client for a running node's /peer and /api/peers
// routes.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("baseURL must not be empty")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cl := &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(cl)
	}
	return cl, nil
}

// Height reports the node's current chain height via /peer/height.
func (c *Client) Height(ctx context.Context) (int, error) {
	var out HeightResponse
	if err := c.getJSON(ctx, "/peer/height", &out); err != nil {
		return 0, err
	}
	return out.Height, nil
}

// Version reports the node's advertised version via /api/peers/version.
func (c *Client) Version(ctx context.Context) (PeersVersionResponse, error) {
	var out PeersVersionResponse
	if err := c.getJSON(ctx, "/api/peers/version", &out); err != nil {
		return PeersVersionResponse{}, err
	}
	return out, nil
}

// Peers lists known peers via /api/peers/, optionally filtered.
func (c *Client) Peers(ctx context.Context, filter url.Values) (PeerListResponse, error) {
	path := "/api/peers/"
	if len(filter) > 0 {
		path += "?" + filter.Encode()
	}
	var out PeerListResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return PeerListResponse{}, err
	}
	if !out.Success {
		return out, fmt.Errorf("list peers: %s", out.Error)
	}
	return out, nil
}

// PeerGet fetches a single peer record via /api/peers/get.
func (c *Client) PeerGet(ctx context.Context, ip string, port int) (PeerGetResponse, error) {
	path := "/api/peers/get?ip=" + url.QueryEscape(ip) + "&port=" + strconv.Itoa(port)
	var out PeerGetResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return PeerGetResponse{}, err
	}
	if !out.Success {
		return out, fmt.Errorf("get peer: %s", out.Error)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http %s %s: status %d", http.MethodGet, path, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

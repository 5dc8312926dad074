package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/veltarosnet/veltaros/internal/peers"
)

type ctxKey int

const peerCtxKey ctxKey = iota

// Router builds the full HTTP router: the framed /peer API, the unframed
// /api/peers management API, and the /peer/ws socket room.
func (t *Transport) Router() *mux.Router {
	r := mux.NewRouter()

	peer := r.PathPrefix("/peer").Subrouter()
	peer.Use(t.framingMiddleware)
	peer.HandleFunc("/list", t.handleList).Methods(http.MethodGet)
	peer.HandleFunc("/blocks/common", t.handleBlocksCommon).Methods(http.MethodGet)
	peer.HandleFunc("/blocks", t.handleBlocksGet).Methods(http.MethodGet)
	peer.HandleFunc("/blocks", t.handleBlocksPost).Methods(http.MethodPost)
	peer.HandleFunc("/signatures", t.handleSignaturesPost).Methods(http.MethodPost)
	peer.HandleFunc("/signatures", t.handleSignaturesGet).Methods(http.MethodGet)
	peer.HandleFunc("/transactions", t.handleTransactionsGet).Methods(http.MethodGet)
	peer.HandleFunc("/transactions", t.handleTransactionsPost).Methods(http.MethodPost)
	peer.HandleFunc("/height", t.handleHeight).Methods(http.MethodGet)
	peer.HandleFunc("/dapp/message", t.handleDappMessage).Methods(http.MethodPost)
	peer.HandleFunc("/dapp/request", t.handleDappRequest).Methods(http.MethodPost)
	r.HandleFunc("/peer/ws", t.room.ServeHTTP)

	api := r.PathPrefix("/api/peers").Subrouter()
	api.HandleFunc("/", t.handlePeersList).Methods(http.MethodGet)
	api.HandleFunc("/get", t.handlePeersGet).Methods(http.MethodGet)
	api.HandleFunc("/version", t.handlePeersVersion).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(t.handleNotFound)
	return r
}

func (t *Transport) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, t, http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   "API endpoint not found",
	})
}

// framingMiddleware enforces the inbound peer contract: synthesize the peer,
// validate headers, check nethash, mark the peer connected, and
// conditionally enable forging + enqueue an update.
func (t *Transport) framingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.isLoaded() {
			writeJSON(w, t, http.StatusOK, map[string]any{
				"success": false,
				"message": "Blockchain is loading",
			})
			return
		}

		ip := remoteIP(r)
		port := headerInt(r, "port")
		p := peers.Inspect(peers.RawPeer{IP: ip, Port: port})

		headerBag := map[string]any{
			"ip":      p.IP,
			"port":    p.Port,
			"os":      r.Header.Get("os"),
			"version": r.Header.Get("version"),
			"nethash": r.Header.Get("nethash"),
		}

		if t.schema != nil {
			if err := t.schema.ValidateHeader(headerBag); err != nil {
				_ = t.dir.Remove(p.IP, p.Port)
				writeJSON(w, t, http.StatusInternalServerError, map[string]any{
					"success": false,
					"error":   err.Error(),
				})
				return
			}
		}

		reqNethash, _ := headerBag["nethash"].(string)
		if reqNethash != t.nethash {
			_ = t.dir.Remove(p.IP, p.Port)
			writeJSON(w, t, http.StatusOK, map[string]any{
				"success":  false,
				"message":  "Request is made on the wrong network",
				"expected": t.nethash,
				"received": reqNethash,
			})
			return
		}

		version, _ := headerBag["version"].(string)
		osName, _ := headerBag["os"].(string)

		updated := peers.Peer{
			IP:         p.IP,
			Port:       p.Port,
			State:      peers.StateConnected,
			HasState:   true,
			OS:         osName,
			HasOS:      true,
			Version:    version,
			HasVersion: true,
		}

		if dappID := bodyDappID(r); dappID != "" {
			updated.DappID = dappID
			updated.HasDappID = true
		}

		if version == t.current && reqNethash == t.nethash {
			if !t.hasReceivedBlock() && t.delegates != nil {
				t.delegates.EnableForging()
			}
			t.dir.Update(updated)
		}

		ctx := context.WithValue(r.Context(), peerCtxKey, updated)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// framedPeer retrieves the peer synthesized by framingMiddleware.
func framedPeer(r *http.Request) (peers.Peer, bool) {
	p, ok := r.Context().Value(peerCtxKey).(peers.Peer)
	return p, ok
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("x-forwarded-for"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func headerInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.Header.Get(name)))
	if err != nil {
		return 0
	}
	return n
}

// bodyDappID peeks the request body for a top-level "dappid" field, then
// restores the body so downstream handlers can still read it in full.
func bodyDappID(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var peek struct {
		DappID string `json:"dappid"`
	}
	_ = json.Unmarshal(raw, &peek)
	return peek.DappID
}

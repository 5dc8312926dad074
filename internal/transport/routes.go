package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/veltarosnet/veltaros/internal/peers"
)

const blockBanSeconds = 60 * 60
const transactionBanSeconds = 60 * 60
const maxBlocksPerPage = 1440

func (t *Transport) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := t.dir.List(100, "")
	if err != nil {
		t.log.WithError(err).Error("transport: list peers failed")
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false})
		return
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"success": true, "peers": list})
}

func (t *Transport) handleBlocksCommon(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	ids := sanitizeNumericIDs(raw)
	if len(ids) == 0 {
		writeJSON(w, t, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Invalid block id sequence",
		})
		return
	}

	if t.blocks == nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false})
		return
	}

	common, err := t.blocks.CommonBlock(ids)
	if err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"success": true, "common": common})
}

func sanitizeNumericIDs(raw string) []string {
	raw = strings.ReplaceAll(raw, `"`, "")
	raw = strings.ReplaceAll(raw, "'", "")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if isNumeric(p) {
			out = append(out, p)
		}
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (t *Transport) handleBlocksGet(w http.ResponseWriter, r *http.Request) {
	lastBlockID := r.URL.Query().Get("lastBlockId")
	if t.blocks == nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"blocks": []any{}})
		return
	}

	blocks, err := t.blocks.LoadBlocksAfter(lastBlockID, maxBlocksPerPage)
	if err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"blocks": []any{}})
		return
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"blocks": blocks})
}

func (t *Transport) handleBlocksPost(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": "invalid body"})
		return
	}

	if t.blocks == nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false})
		return
	}

	normalized, blockID, err := t.blocks.ObjectNormalize(raw)
	if err != nil {
		t.banFramedPeer(r, blockBanSeconds, "EBLOCK")
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	t.markBlockReceived()
	if t.bus != nil {
		t.bus.Emit("receiveBlock", normalized)
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"success": true, "blockId": blockID})
}

func (t *Transport) handleSignaturesPost(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil || t.txs == nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false})
		return
	}
	if err := t.txs.ProcessSignature(raw); err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	if t.bus != nil {
		t.bus.Emit("signature", json.RawMessage(raw))
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"success": true})
}

func (t *Transport) handleSignaturesGet(w http.ResponseWriter, r *http.Request) {
	if t.txs == nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": true, "signatures": []any{}})
		return
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"success": true, "signatures": t.txs.Signatures()})
}

func (t *Transport) handleTransactionsGet(w http.ResponseWriter, r *http.Request) {
	if t.txs == nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": true, "transactions": []any{}})
		return
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"success": true, "transactions": t.txs.UnconfirmedList()})
}

func (t *Transport) handleTransactionsPost(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": "invalid body"})
		return
	}

	if t.txs == nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false})
		return
	}

	normalized, txID, err := t.txs.ObjectNormalize(raw)
	if err != nil {
		t.banFramedPeer(r, transactionBanSeconds, "ETRANSACTION")
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	err = t.balances.EnqueueWait(r.Context(), func() error {
		return t.txs.ReceiveTransactions([]json.RawMessage{normalized})
	})
	if err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	if t.bus != nil {
		t.bus.Emit("unconfirmedTransaction", normalized)
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"success": true, "transactionId": txID})
}

func (t *Transport) handleHeight(w http.ResponseWriter, r *http.Request) {
	if t.system == nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"height": 0})
		return
	}
	height, err := t.system.Height()
	if err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"height": 0})
		return
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"height": height})
}

func (t *Transport) handleDappMessage(w http.ResponseWriter, r *http.Request) {
	raw, body, ok := t.validateDappEnvelope(w, r)
	if !ok {
		return
	}

	if p, ok := framedPeer(r); ok {
		t.dir.AddDapp(p.IP, p.Port, raw.DappID)
	}

	if t.dedup.SeenBefore(raw.Hash) {
		writeJSON(w, t, http.StatusOK, map[string]any{})
		return
	}

	if t.dapps == nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false})
		return
	}

	if err := t.dapps.Message(raw.DappID, body); err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	if t.bus != nil {
		t.bus.Emit("message", body)
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"success": true})
}

func (t *Transport) handleDappRequest(w http.ResponseWriter, r *http.Request) {
	raw, _, ok := t.validateDappEnvelope(w, r)
	if !ok {
		return
	}

	if p, ok := framedPeer(r); ok {
		t.dir.AddDapp(p.IP, p.Port, raw.DappID)
	}

	if t.dapps == nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false})
		return
	}

	method := r.URL.Query().Get("method")
	path := r.URL.Query().Get("path")
	query := map[string]string{}
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}

	resp, err := t.dapps.Request(raw.DappID, method, path, query)
	if err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, t, http.StatusOK, resp)
}

type dappEnvelope struct {
	DappID    string `json:"dappid"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}

func (t *Transport) validateDappEnvelope(w http.ResponseWriter, r *http.Request) (dappEnvelope, json.RawMessage, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": "invalid body"})
		return dappEnvelope{}, nil, false
	}

	var env dappEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": "invalid body"})
		return dappEnvelope{}, nil, false
	}

	if t.schema != nil {
		if err := t.schema.ValidateDappMessage(env); err != nil {
			writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
			return dappEnvelope{}, nil, false
		}
	}

	var withoutHash map[string]any
	if err := json.Unmarshal(raw, &withoutHash); err != nil {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": "invalid body"})
		return dappEnvelope{}, nil, false
	}
	delete(withoutHash, "hash")

	expected, err := HashSum(withoutHash, env.Timestamp)
	if err != nil || expected != env.Hash {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": "hash mismatch"})
		return dappEnvelope{}, nil, false
	}

	return env, raw, true
}

// banFramedPeer bans the peer synthesized by framingMiddleware for seconds,
// logging (but not surfacing) any storage failure.
func (t *Transport) banFramedPeer(r *http.Request, seconds int, code string) {
	p, ok := framedPeer(r)
	if !ok {
		return
	}
	if err := t.dir.SetState(p.IP, p.Port, peers.StateBanned, seconds); err != nil {
		t.log.WithError(err).WithField("code", code).Debug("transport: ban rejected (whitelisted peer)")
	}
}

func (t *Transport) handlePeersList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := peers.Filter{
		IP:      q.Get("ip"),
		OS:      q.Get("os"),
		Version: q.Get("version"),
		OrderBy: q.Get("orderBy"),
	}
	if v := q.Get("port"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Port = &n
		}
	}
	if v := q.Get("state"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			st := peers.State(n)
			f.State = &st
		}
	}
	if v := q.Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	out, err := t.dir.GetByFilter(f)
	if err != nil {
		writeJSON(w, t, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"success": true, "peers": out})
}

func (t *Transport) handlePeersGet(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	portRaw := r.URL.Query().Get("port")
	if ip == "" || portRaw == "" {
		writeJSON(w, t, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "ip and port are required",
		})
		return
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil {
		writeJSON(w, t, http.StatusInternalServerError, map[string]any{"success": false, "error": "invalid port"})
		return
	}

	out, err := t.dir.GetByFilter(peers.Filter{IP: ip, Port: &port, Limit: 1})
	if err != nil {
		writeJSON(w, t, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	if len(out) == 0 {
		writeJSON(w, t, http.StatusOK, map[string]any{"success": false, "error": "peer not found"})
		return
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"success": true, "peer": out[0]})
}

func (t *Transport) handlePeersVersion(w http.ResponseWriter, r *http.Request) {
	build := ""
	if t.system != nil {
		_, build = t.system.Version()
	}
	writeJSON(w, t, http.StatusOK, map[string]any{"version": t.current, "build": build})
}

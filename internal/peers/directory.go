package peers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SchemaValidator is the narrow capability PeerDirectory needs from the
// JSON-schema collaborator: validating a raw peer record against the peer
// schema (ip, port, state required).
type SchemaValidator interface {
	ValidatePeer(data any) error
}

// RandomPeerFetcher is the capability PeerDirectory needs from Transport to
// run a refresh cycle: pick a live peer at random, retry on failure, and
// return its /peer/list response. internal/peers declares this interface for
// itself; internal/transport is the only implementation, injected after both
// sides are constructed, which is how the Peers<->Transport cycle resolves.
type RandomPeerFetcher interface {
	FetchPeerList(ctx context.Context) ([]RawPeer, error)
}

// Config configures a Directory. Seeds is the frozen whitelist
// (config.peers.list); entries in it never transition to BANNED and are
// never removed.
type Config struct {
	Seeds              []Peer
	MinVersion         string
	MaxUpdatePeers     int
	RefreshInterval    time.Duration
	BanManagerInterval time.Duration
	WriteQueueDepth    int
}

// Directory is the durable peer directory. It owns the single writer
// queue, the process-local RemovedCache, and the frozen whitelist.
type Directory struct {
	db      DB
	schema  SchemaValidator
	log     *logrus.Entry
	fetcher RandomPeerFetcher

	seeds          map[PeerKey]Peer
	minVersion     string
	maxUpdatePeers int

	refreshInterval time.Duration
	banInterval     time.Duration

	removed    *RemovedCache
	writeQueue *Sequence

	peersReady chan struct{}
	readyOnce  sync.Once
}

// NewDirectory builds a Directory. db and log must be non-nil; schema may be
// nil (schema validation is skipped, useful for tests).
func NewDirectory(db DB, schema SchemaValidator, log *logrus.Entry, cfg Config) *Directory {
	if cfg.MaxUpdatePeers <= 0 {
		cfg.MaxUpdatePeers = 20
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 60 * time.Second
	}
	if cfg.BanManagerInterval <= 0 {
		cfg.BanManagerInterval = 65 * time.Second
	}
	if cfg.MinVersion == "" {
		cfg.MinVersion = defaultVersion
	}

	seeds := make(map[PeerKey]Peer, len(cfg.Seeds))
	for _, s := range cfg.Seeds {
		seeds[s.Key()] = s
	}

	return &Directory{
		db:              db,
		schema:          schema,
		log:             log,
		seeds:           seeds,
		minVersion:      cfg.MinVersion,
		maxUpdatePeers:  cfg.MaxUpdatePeers,
		refreshInterval: cfg.RefreshInterval,
		banInterval:     cfg.BanManagerInterval,
		removed:         NewRemovedCache(128),
		writeQueue:      NewSequence(cfg.WriteQueueDepth),
		peersReady:      make(chan struct{}),
	}
}

// SetFetcher wires the RandomPeerFetcher after Transport has been
// constructed, breaking the Peers<->Transport initialization cycle.
func (d *Directory) SetFetcher(f RandomPeerFetcher) {
	d.fetcher = f
}

// Ready returns a channel that closes once seed bootstrap has completed.
func (d *Directory) Ready() <-chan struct{} {
	return d.peersReady
}

// Close stops the write queue, draining any pending jobs first.
func (d *Directory) Close() {
	d.writeQueue.Close()
}

func (d *Directory) isSeed(ip string, port int) bool {
	_, ok := d.seeds[PeerKey{IP: ip, Port: port}]
	return ok
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// List returns up to limit peers (capped at 100) in randomized order,
// excluding BANNED peers, optionally restricted to a dapp association.
func (d *Directory) List(limit int, dappID string) ([]Peer, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	out, err := d.db.List(limit, dappID)
	if err != nil {
		return nil, errors.Wrap(err, "Peers#list error")
	}
	return out, nil
}

// Update upserts peer. The write is enqueued on the single writer queue and
// this call does not wait for it to apply.
func (d *Directory) Update(p Peer) {
	d.writeQueue.Enqueue(func() {
		if err := d.db.Upsert(p); err != nil {
			d.log.WithError(errors.Wrap(err, "Peers#update error")).
				WithField("peer", p.String()).Error("peers: update failed")
		}
	})
}

// SetState sets a peer's state. Banning a whitelisted (seed) peer is
// rejected with ErrWhiteListed and never reaches storage; every other
// failure is logged and swallowed.
func (d *Directory) SetState(ip string, port int, state State, timeoutSeconds int) error {
	if state == StateBanned && d.isSeed(ip, port) {
		return ErrWhiteListed{IP: ip, Port: port}
	}

	var clockMillis int64
	if state == StateBanned {
		secs := timeoutSeconds
		if secs < 1 {
			secs = 1
		}
		clockMillis = nowMillis() + int64(secs)*1000
	}

	d.writeQueue.Enqueue(func() {
		if err := d.db.SetState(ip, port, state, clockMillis); err != nil {
			d.log.WithError(errors.Wrap(err, "Peers#setState error")).
				WithField("peer", fmt.Sprintf("%s:%d", ip, port)).Error("peers: set state failed")
		}
	})
	return nil
}

// Remove deletes a peer by key and records its IP in RemovedCache. A
// whitelisted (seed) peer is never removed.
func (d *Directory) Remove(ip string, port int) error {
	if d.isSeed(ip, port) {
		return ErrWhiteListed{IP: ip, Port: port}
	}

	d.writeQueue.Enqueue(func() {
		if err := d.db.Delete(ip, port); err != nil {
			d.log.WithError(errors.Wrap(err, "Peers#remove error")).
				WithField("peer", fmt.Sprintf("%s:%d", ip, port)).Error("peers: remove failed")
			return
		}
		d.removed.Add(ip)
	})
	return nil
}

// AddDapp associates dappID with the peer at (ip, port), if it exists.
func (d *Directory) AddDapp(ip string, port int, dappID string) {
	d.writeQueue.Enqueue(func() {
		if err := d.db.AddDapp(ip, port, dappID); err != nil {
			d.log.WithError(errors.Wrap(err, "Peers#addDapp error")).
				WithField("peer", fmt.Sprintf("%s:%d", ip, port)).Error("peers: add dapp failed")
		}
	})
}

// Count returns the number of peers in the directory.
func (d *Directory) Count() (int, error) {
	n, err := d.db.Count()
	if err != nil {
		return 0, errors.Wrap(err, "Peers#count error")
	}
	return n, nil
}

// GetByFilter runs a filtered, sorted, paged query. limit/offset are
// normalized (absolute value, limit defaulting to 100) before hitting
// storage; a limit above 100 is rejected with ErrLimitTooLarge.
func (d *Directory) GetByFilter(f Filter) ([]Peer, error) {
	f = f.Normalize()

	if f.Limit > maxFilterLimit {
		return nil, ErrLimitTooLarge{Limit: f.Limit}
	}
	sanitized, err := SanitizeOrderBy(f.OrderBy)
	if err != nil {
		return nil, err
	}
	f.OrderBy = sanitized

	out, err := d.db.GetByFilter(f)
	if err != nil {
		return nil, errors.Wrap(err, "Peers#getByFilter error")
	}
	return out, nil
}

// BanManager clears expired bans: every BANNED peer whose clock has passed
// transitions back to DISCONNECTED with clock cleared.
func (d *Directory) BanManager() {
	n, err := d.db.ClearExpiredBans(nowMillis())
	if err != nil {
		d.log.WithError(errors.Wrap(err, "Peers#banManager error")).Error("peers: ban manager failed")
		return
	}
	if n > 0 {
		d.log.WithField("count", n).Debug("peers: cleared expired bans")
	}
}

// RefreshFromRandomPeer runs one peer-exchange cycle: fetch a candidate list
// from a random live peer, filter and bound it, then validate and upsert
// survivors with bounded concurrency.
func (d *Directory) RefreshFromRandomPeer(ctx context.Context) {
	if d.fetcher == nil {
		return
	}

	raws, err := d.fetcher.FetchPeerList(ctx)
	if err != nil {
		d.log.WithError(err).Debug("peers: refresh cycle aborted")
		return
	}

	candidates := make([]RawPeer, 0, len(raws))
	for _, r := range raws {
		if d.removed.Contains(fmt.Sprintf("%v", r.IP)) {
			continue
		}
		candidates = append(candidates, r)
		if len(candidates) >= d.maxUpdatePeers {
			break
		}
	}

	if rand.Float64() < 0.5 {
		d.removed.ShrinkBothEnds()
	}

	g, _ := errgroup.WithContext(ctx)
	sem := make(chan struct{}, 2)
	for _, raw := range candidates {
		raw := raw
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			d.validateCandidate(raw)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Directory) validateCandidate(raw RawPeer) {
	p := Inspect(raw)

	if VersionLess(p.Version, d.minVersion) {
		d.log.WithField("peer", p.String()).Warn("Rejecting peer (invalid version)")
		return
	}

	if d.schema != nil {
		if err := d.schema.ValidatePeer(raw); err != nil {
			d.log.WithError(err).WithField("peer", p.String()).Debug("peers: rejecting peer (schema)")
			return
		}
	}

	d.Update(p)
}

// OnBlockchainReady upserts every configured seed with state=CONNECTED
// (ignoring conflicts), then runs one refresh cycle if any peers exist,
// and finally signals Ready.
func (d *Directory) OnBlockchainReady(ctx context.Context) {
	for _, seed := range d.seeds {
		seed := seed
		seed.State = StateConnected
		seed.HasState = true
		err := d.writeQueue.EnqueueWait(ctx, func() error {
			return d.db.Upsert(seed)
		})
		if err != nil {
			d.log.WithError(errors.Wrap(err, "Peers#update error")).
				WithField("peer", seed.String()).Error("peers: seed insert failed")
		}
	}

	n, err := d.db.Count()
	if err != nil {
		d.log.WithError(errors.Wrap(err, "Peers#count error")).Error("peers: count failed during bootstrap")
	}

	if n > 0 {
		d.RefreshFromRandomPeer(ctx)
	} else {
		d.log.Info("peers list is empty")
	}

	d.log.Infof("Peers ready, stored %d", n)
	d.readyOnce.Do(func() { close(d.peersReady) })
}

// RunPeriodicLoops blocks until ctx is cancelled, driving the refresh and
// ban-manager tickers once bootstrap has signaled Ready. The two loops are
// independent: neither waits on the other.
func (d *Directory) RunPeriodicLoops(ctx context.Context) {
	select {
	case <-d.peersReady:
	case <-ctx.Done():
		return
	}

	refreshTicker := time.NewTicker(d.refreshInterval)
	banTicker := time.NewTicker(d.banInterval)
	defer refreshTicker.Stop()
	defer banTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refreshTicker.C:
			d.RefreshFromRandomPeer(ctx)
		case <-banTicker.C:
			d.BanManager()
		}
	}
}

// ErrWhiteListed is returned when setState(banned) or remove targets a
// frozen-whitelist (seed) peer.
type ErrWhiteListed struct {
	IP   string
	Port int
}

func (e ErrWhiteListed) Error() string {
	return "Peer in white list"
}

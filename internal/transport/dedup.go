package transport

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// MessageDedup suppresses reprocessing of dapp messages already seen,
// bounded by both an LRU capacity and a TTL comparable to the gossip
// horizon, resolving the source's unbounded-set growth.
type MessageDedup struct {
	mu    sync.Mutex
	cache *lru.Cache
	ttl   time.Duration
}

// NewMessageDedup builds a dedup set holding up to capacity hashes, each
// expiring after ttl.
func NewMessageDedup(capacity int, ttl time.Duration) *MessageDedup {
	if capacity <= 0 {
		capacity = 4096
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	cache, _ := lru.New(capacity)
	return &MessageDedup{cache: cache, ttl: ttl}
}

// SeenBefore reports whether hash was already recorded (and not yet
// expired), recording it as seen if not.
func (d *MessageDedup) SeenBefore(hash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.cache.Get(hash); ok {
		if time.Now().Before(v.(time.Time).Add(d.ttl)) {
			return true
		}
	}
	d.cache.Add(hash, time.Now())
	return false
}

package settle

import (
	"sync"
	"time"
)

// claimGuard is the in-process first line of defense against duplicate
// claims: it remembers recently seen nullifiers so concurrent claims on the
// same position short-circuit before proof verification. The durable
// spent-set remains authoritative; the guard only saves work. Safe for
// concurrent use.
type claimGuard struct {
	seen map[string]time.Time // nullifier -> first seen
	ttl  time.Duration
	mu   sync.Mutex
}

func newClaimGuard(ttl time.Duration) *claimGuard {
	return &claimGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// acquire records the nullifier and returns false if it was already seen
// within the TTL window.
func (g *claimGuard) acquire(nullifier string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if first, ok := g.seen[nullifier]; ok && now.Sub(first) < g.ttl {
		return false
	}
	g.seen[nullifier] = now
	return true
}

// release forgets a nullifier so a failed claim can be retried.
func (g *claimGuard) release(nullifier string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, nullifier)
}

// cleanup drops expired entries to keep memory bounded. Called periodically
// by the settler.
func (g *claimGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for n, ts := range g.seen {
		if now.Sub(ts) >= g.ttl {
			delete(g.seen, n)
		}
	}
}

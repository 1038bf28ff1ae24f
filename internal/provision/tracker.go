package provision

import "sync"

// sizeTracker records which creatives a run has already claimed. It is
// created per run and safe for the run's creative workers.
type sizeTracker struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newSizeTracker() *sizeTracker {
	return &sizeTracker{claimed: make(map[string]bool)}
}

// claim reports whether key was unclaimed, claiming it if so.
func (t *sizeTracker) claim(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.claimed[key] {
		return false
	}
	t.claimed[key] = true
	return true
}

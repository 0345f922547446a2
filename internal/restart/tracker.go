package restart

import "sync"

// tracker marks services with a restart in flight so a second trigger
// for the same service is rejected instead of racing the remote API.
type tracker struct {
	mu       sync.Mutex
	inflight map[string]bool
}

func newTracker() *tracker {
	return &tracker{inflight: make(map[string]bool)}
}

// begin claims the service, returning false if a restart is already in
// flight for it.
func (t *tracker) begin(serviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inflight[serviceID] {
		return false
	}
	t.inflight[serviceID] = true
	return true
}

func (t *tracker) end(serviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, serviceID)
}

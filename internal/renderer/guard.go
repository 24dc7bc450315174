package renderer

import "sync"

// Guard admits at most one in-flight render per user.
type Guard struct {
	mu   sync.Mutex
	busy map[int64]struct{}
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{busy: make(map[int64]struct{})}
}

// Acquire marks the user busy. ok is false when a render is already running for
// the user; otherwise release must be called once the render resolves.
func (g *Guard) Acquire(userID int64) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, taken := g.busy[userID]; taken {
		return func() {}, false
	}
	g.busy[userID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, userID)
			g.mu.Unlock()
		})
	}, true
}

// Busy reports whether the user has a render in flight.
func (g *Guard) Busy(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, taken := g.busy[userID]
	return taken
}

// InFlight returns the number of renders currently running.
func (g *Guard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.busy)
}

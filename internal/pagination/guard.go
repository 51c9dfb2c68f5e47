package pagination

import (
	"context"
	"sync"
)

// Guard arbitrates the runs of one logical view. Begin starts a new
// generation and cancels the previous run, so its in-flight fetch is aborted;
// Apply runs a result callback only while its run is still current, so a
// late response from a superseded run never reaches shared state.
type Guard struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Ticket identifies one run started by Guard.Begin.
type Ticket struct {
	gen uint64
}

// Generation returns the run's generation number, for logging.
func (t Ticket) Generation() uint64 { return t.gen }

// Begin supersedes the current run and returns the context and ticket of a
// new one. The context is canceled when a later run begins, when Cancel is
// called for the run, or when parent is done.
func (g *Guard) Begin(parent context.Context) (context.Context, Ticket) {
	ctx, cancel := context.WithCancel(parent)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.gen++
	g.cancel = cancel
	return ctx, Ticket{gen: g.gen}
}

// Apply calls fn while holding the guard, only if t is still current, and
// ends the run: its context is released and a later Cancel(t) reports
// false. It reports whether fn ran.
func (g *Guard) Apply(t Ticket, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.gen != g.gen || g.cancel == nil {
		return false
	}
	fn()
	g.cancel()
	g.cancel = nil
	return true
}

// Cancel aborts run t if it is still current. Results of t are dropped by
// Apply afterwards. It reports whether t was current.
func (g *Guard) Cancel(t Ticket) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.gen != g.gen || g.cancel == nil {
		return false
	}
	g.cancel()
	g.cancel = nil
	return true
}

// Stop aborts whatever run is current.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

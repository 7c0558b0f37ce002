package poll

import (
	"log/slog"
	"sync"
)

// CooldownTicks is how many one-second ticks a component stays locked
// after a command. Physical actuators take a moment to acknowledge;
// rapid duplicate toggles would desync the remote target state from
// what the panel shows.
const CooldownTicks = 10

// Gate holds a per-component countdown. A component with a nonzero
// countdown rejects further commands until it either ticks down to zero
// or is cancelled by a failed command. Ticking is driven externally,
// once per clock second, by the dashboard loop.
type Gate struct {
	mu        sync.Mutex
	remaining map[string]int
	logger    *slog.Logger
}

// NewGate creates an empty gate.
func NewGate(logger *slog.Logger) *Gate {
	return &Gate{
		remaining: make(map[string]int),
		logger:    logger.With("component", "gate"),
	}
}

// Start begins the countdown for a component. It returns false, without
// touching the countdown, when the component is still locked.
func (g *Gate) Start(component string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.remaining[component] > 0 {
		g.logger.Debug("command rejected, cooldown active",
			"actuator", component, "remaining", g.remaining[component])
		return false
	}
	g.remaining[component] = CooldownTicks
	return true
}

// Tick decrements every active countdown by one, clearing entries that
// reach zero.
func (g *Gate) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for component, n := range g.remaining {
		if n <= 1 {
			delete(g.remaining, component)
			continue
		}
		g.remaining[component] = n - 1
	}
}

// Cancel clears a component's countdown immediately. Called when the
// command behind it failed, so the user can retry right away.
func (g *Gate) Cancel(component string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.remaining, component)
}

// Remaining reports the ticks left for a component, zero when unlocked.
func (g *Gate) Remaining(component string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining[component]
}

// Package annotations provides a low-overhead event system for
// tracking statement execution metrics and debugging information.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Statement lifecycle
	StatementInvoked   = "statement/invoked"
	StatementCompleted = "statement/completed"
	StatementFailed    = "statement/failed"

	// Planning decisions
	CollectorSelected = "plan/collector.selected"
	StrategySelected  = "plan/strategy.selected"
	PushdownApplied   = "plan/pushdown.applied"

	// Source iteration
	SourceIngested = "source/ingested"
	SourceScanned  = "source/scanned"
	ScanCancelled  = "source/scan.cancelled"

	// Result shaping
	ResultsSorted  = "results/sorted"
	ResultsTrimmed = "results/trimmed"
	GroupsFolded   = "results/groups.folded"

	// Errors
	ErrorBackend = "error/backend"
	ErrorCompute = "error/compute"
)

// Event represents a single annotation event during statement
// execution.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events during statement execution.
type Collector struct {
	enabled bool
	handler Handler

	mu     sync.Mutex
	events []Event
}

// NewCollector creates a new annotation collector. A nil handler
// collects events without streaming them anywhere.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: true,
		handler: handler,
		events:  make([]Event, 0, 64),
	}
}

// Handler returns the underlying event handler.
func (c *Collector) Handler() Handler {
	return c.handler
}

// Add records a new event. Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if c == nil || !c.enabled {
		return
	}
	if event.Start.IsZero() {
		event.Start = time.Now()
		event.End = event.Start
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	if c.handler != nil {
		c.handler(event)
	}
}

// AddTiming records an event with timing information.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if c == nil || !c.enabled {
		return
	}
	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of all collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

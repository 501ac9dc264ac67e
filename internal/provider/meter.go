package provider

import "sync"

// Meter is the process-wide running cost total. Safe for concurrent use;
// only the gateway increments it, everything else reads.
type Meter struct {
	mu       sync.Mutex
	total    float64
	requests int
}

// NewMeter returns a zeroed cost meter.
func NewMeter() *Meter {
	return &Meter{}
}

// Add records the cost of one successful call.
func (m *Meter) Add(cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total += cost
	m.requests++
}

// Total returns the accumulated cost in USD.
func (m *Meter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Stats returns the request count and accumulated cost.
func (m *Meter) Stats() (requests int, total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests, m.total
}

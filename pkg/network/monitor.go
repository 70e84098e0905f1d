package network

// monitor.go: statistics about session activity

import (
	"sync"
	"time"
)

// Stats holds statistics about one or more sessions
type Stats struct {
	// Fact statistics
	Inserts  int // Facts inserted
	Updates  int // Facts updated
	Retracts int // Facts retracted

	// Propagation statistics
	Settles       int           // Number of settle passes that had work to do
	SettleTime    time.Duration // Time spent settling
	Propagations  int64         // Tuple transitions sent downstream
	PeakQueueSize int           // Largest node queue seen at the end of a layer

	ScoreCalculations int // Score reads

	// Network shape, from the last session built with this monitor
	Nodes       int
	Layers      int
	Constraints int
}

// Monitor collects Stats. It is safe for concurrent use, so one monitor can
// follow several sessions running in parallel.
type Monitor struct {
	mu    sync.Mutex
	stats Stats
}

// NewMonitor creates a new monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Stats returns a copy of the current statistics
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Reset clears all statistics
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
}

func (m *Monitor) recordShape(nodes, layers, constraints int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Nodes = nodes
	m.stats.Layers = layers
	m.stats.Constraints = constraints
}

func (m *Monitor) recordFactOp(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch op {
	case opInsert:
		m.stats.Inserts++
	case opUpdate:
		m.stats.Updates++
	case opRetract:
		m.stats.Retracts++
	}
}

// recordSettle records one settle pass of a network
func (m *Monitor) recordSettle(d time.Duration, propagations int64, peakQueue int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Settles++
	m.stats.SettleTime += d
	m.stats.Propagations += propagations
	if peakQueue > m.stats.PeakQueueSize {
		m.stats.PeakQueueSize = peakQueue
	}
}

func (m *Monitor) recordScoreCalculation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.ScoreCalculations++
}

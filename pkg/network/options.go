package network

import (
	"log/slog"
)

// SessionOption configures NewSession.
// Use helpers like WithConstraintMatch, WithLogger, WithMetrics, WithMonitor
// and WithConstraintWeight.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	matchEnabled bool
	logger       *slog.Logger
	metrics      *Metrics
	monitor      *Monitor
	// Weight overrides by constraint id, checked against the score type
	// at build time.
	weights map[string]any
}

// WithConstraintMatch enables constraint match tracking, which the
// explanation queries of a session need. It slows down every score impact.
func WithConstraintMatch(enabled bool) SessionOption {
	return func(c *sessionConfig) { c.matchEnabled = enabled }
}

// WithLogger sets the logger of the session. The default is slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(c *sessionConfig) { c.logger = l }
}

// WithMetrics reports the session's activity to m.
func WithMetrics(m *Metrics) SessionOption {
	return func(c *sessionConfig) { c.metrics = m }
}

// WithMonitor collects the session's statistics in m, which may be shared
// by sessions running on different goroutines.
func WithMonitor(m *Monitor) SessionOption {
	return func(c *sessionConfig) { c.monitor = m }
}

// WithConstraintWeight replaces the weight of the constraint with the given
// id ("name", or "package/name" for constraints declared InPackage). A zero
// weight disables the constraint.
func WithConstraintWeight[S any](id string, weight S) SessionOption {
	return func(c *sessionConfig) {
		if c.weights == nil {
			c.weights = make(map[string]any)
		}
		c.weights[id] = weight
	}
}

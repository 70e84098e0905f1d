package network

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/gitrdm/gokanscore/internal/elist"
	"github.com/gitrdm/gokanscore/pkg/inliner"
	"github.com/gitrdm/gokanscore/pkg/score"
)

const (
	opInsert  = "insert"
	opUpdate  = "update"
	opRetract = "retract"
)

// Session is a live constraint network over a changing set of facts. It
// keeps the score of the current facts up to date, recomputing only what
// each mutation touches.
//
// Mutations are queued at the sources and propagated when the score or an
// explanation is read, or when Settle is called. A Session is not safe for
// concurrent use; independent sessions share nothing and may run in
// parallel.
//
// Facts are identified by ==, so they must be comparable; pointers to
// domain objects are the usual choice. The caller inserts a fact once,
// updates it any number of times after changing it in place and retracts it
// once.
type Session[S score.Score[S], N score.Number[N]] struct {
	id       uuid.UUID
	logger   *slog.Logger
	metrics  *Metrics
	monitor  *Monitor
	inliner  *inliner.Inliner[S, N]
	net      *network
	dispatch map[reflect.Type][]*forEachNode
	facts    map[any]struct{}
	broken   error
}

// NewSession assembles the network declared in b.
func NewSession[S score.Score[S], N score.Number[N]](b *Builder[S, N], opts ...SessionOption) (*Session[S, N], error) {
	if b.err != nil {
		return nil, b.err
	}
	cfg := &sessionConfig{}
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.monitor == nil {
		cfg.monitor = NewMonitor()
	}
	id := uuid.New()
	logger := cfg.logger.With("session_id", id.String())

	active, weights, err := resolveWeights(b, cfg, logger)
	if err != nil {
		return nil, err
	}
	in, err := inliner.New(b.def, weights, cfg.matchEnabled)
	if err != nil {
		return nil, err
	}
	net, err := assemble(b, active, in)
	if err != nil {
		return nil, err
	}
	cfg.monitor.recordShape(net.nodes, len(net.layers), len(active))
	logger.Debug("session built",
		"score", b.def.String(),
		"nodes", net.nodes,
		"layers", len(net.layers),
		"constraints", len(active),
		"constraint_match", cfg.matchEnabled)

	return &Session[S, N]{
		id:       id,
		logger:   logger,
		metrics:  cfg.metrics,
		monitor:  cfg.monitor,
		inliner:  in,
		net:      net,
		dispatch: make(map[reflect.Type][]*forEachNode),
		facts:    make(map[any]struct{}),
	}, nil
}

// ID identifies the session in logs.
func (s *Session[S, N]) ID() uuid.UUID { return s.id }

// Len returns the number of live facts.
func (s *Session[S, N]) Len() int { return len(s.facts) }

// Err returns the failure that broke the session, or nil.
func (s *Session[S, N]) Err() error { return s.broken }

// Insert adds a fact. Inserting a live fact is an error.
func (s *Session[S, N]) Insert(fact any) error {
	if err := s.checkFact(fact); err != nil {
		return err
	}
	if _, ok := s.facts[fact]; ok {
		return fmt.Errorf("%w: fact %v inserted twice", ErrContractViolation, fact)
	}
	s.facts[fact] = struct{}{}
	s.recordFactOp(opInsert)
	return s.guard(func() {
		for _, n := range s.sourcesFor(fact) {
			n.insertFact(fact)
		}
	})
}

// Update signals that a live fact has changed.
func (s *Session[S, N]) Update(fact any) error {
	if err := s.checkLive(fact, opUpdate); err != nil {
		return err
	}
	s.recordFactOp(opUpdate)
	return s.guard(func() {
		for _, n := range s.sourcesFor(fact) {
			n.updateFact(fact)
		}
	})
}

// Retract removes a live fact.
func (s *Session[S, N]) Retract(fact any) error {
	if err := s.checkLive(fact, opRetract); err != nil {
		return err
	}
	delete(s.facts, fact)
	s.recordFactOp(opRetract)
	return s.guard(func() {
		for _, n := range s.sourcesFor(fact) {
			n.retractFact(fact)
		}
	})
}

// Settle propagates every pending mutation.
func (s *Session[S, N]) Settle() error {
	if s.broken != nil {
		return s.brokenErr()
	}
	if !s.net.pending() {
		return nil
	}
	start := time.Now()
	err := s.guard(s.net.settle)
	elapsed := time.Since(start)
	stats := s.net.takeStats()
	s.metrics.observeSettle(elapsed)
	s.monitor.recordSettle(elapsed, stats.propagations, stats.peakQueue)
	return err
}

// CalculateScore settles and returns the score of the current facts.
func (s *Session[S, N]) CalculateScore() (S, error) {
	if err := s.Settle(); err != nil {
		var zero S
		return zero, err
	}
	s.metrics.scoreCalculated()
	s.monitor.recordScoreCalculation()
	return s.inliner.ExtractScore(), nil
}

// ConstraintMatchTotals settles and returns the current total of every
// constraint with at least one match, ordered by constraint id.
func (s *Session[S, N]) ConstraintMatchTotals() ([]*inliner.ConstraintMatchTotal[S], error) {
	if err := s.settleForExplanation(); err != nil {
		return nil, err
	}
	return s.inliner.ConstraintMatchTotals(), nil
}

// Indictments settles and returns the indictment of every object blamed by
// at least one match, heaviest first.
func (s *Session[S, N]) Indictments() ([]*inliner.Indictment[S], error) {
	if err := s.settleForExplanation(); err != nil {
		return nil, err
	}
	return s.inliner.Indictments(), nil
}

// Indictment settles and returns the matches blaming obj. The boolean is
// false when no match does.
func (s *Session[S, N]) Indictment(obj any) (*inliner.Indictment[S], bool, error) {
	if err := s.settleForExplanation(); err != nil {
		return nil, false, err
	}
	ind, ok := s.inliner.Indictment(obj)
	return ind, ok, nil
}

// Summary settles and renders the score explanation, listing at most limit
// matches per constraint and per indicted object.
func (s *Session[S, N]) Summary(limit int) (string, error) {
	if err := s.settleForExplanation(); err != nil {
		return "", err
	}
	return s.inliner.Summary(limit), nil
}

// Stats returns the statistics of the session's monitor.
func (s *Session[S, N]) Stats() Stats { return s.monitor.Stats() }

func (s *Session[S, N]) settleForExplanation() error {
	if !s.inliner.ConstraintMatchEnabled() {
		return ErrMatchTrackingDisabled
	}
	return s.Settle()
}

func (s *Session[S, N]) checkFact(fact any) error {
	if s.broken != nil {
		return s.brokenErr()
	}
	if fact == nil {
		return fmt.Errorf("%w: nil fact", ErrContractViolation)
	}
	if !reflect.ValueOf(fact).Comparable() {
		return fmt.Errorf("%w: fact of type %T is not comparable", ErrContractViolation, fact)
	}
	return nil
}

func (s *Session[S, N]) checkLive(fact any, op string) error {
	if err := s.checkFact(fact); err != nil {
		return err
	}
	if _, ok := s.facts[fact]; !ok {
		return fmt.Errorf("%w: %s of unknown fact %v", ErrContractViolation, op, fact)
	}
	return nil
}

func (s *Session[S, N]) recordFactOp(op string) {
	s.metrics.factOp(op)
	s.monitor.recordFactOp(op)
}

// sourcesFor returns the sources accepting the dynamic type of fact.
func (s *Session[S, N]) sourcesFor(fact any) []*forEachNode {
	t := reflect.TypeOf(fact)
	nodes, ok := s.dispatch[t]
	if !ok {
		for _, n := range s.net.sources {
			if n.accepts(t) {
				nodes = append(nodes, n)
			}
		}
		s.dispatch[t] = nodes
	}
	return nodes
}

// guard runs fn and turns a panic into an error. The node state cannot be
// trusted after a panic, so the session is broken for good.
func (s *Session[S, N]) guard(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var kind string
		kind, err = s.classify(panicError(r))
		s.broken = err
		s.metrics.sessionBroken(kind)
		s.logger.Error("session broken", "kind", kind, "error", err)
	}()
	fn()
	return nil
}

// classify sorts a recovered failure into user logic failing at a scorer,
// engine misuse, a Go runtime fault and any other failure of user logic.
// A runtime fault may come from user code or from the engine itself, so it
// keeps its own kind and is still reported as a PropagationError.
func (s *Session[S, N]) classify(cause error) (string, error) {
	var (
		impact  *ImpactError
		fault  runtime.Error
	)
	switch {
	case errors.As(cause, &impact):
		return "impact", impact
	case errors.Is(cause, ErrContractViolation):
		return "contract", cause
	case errors.Is(cause, elist.ErrEntryNotOwned), errors.Is(cause, inliner.ErrUndoTwice):
		return "contract", fmt.Errorf("%w: %w", ErrContractViolation, cause)
	case errors.As(cause, &fault):
		return "runtime", &PropagationError{Layer: s.net.layer, Cause: cause}
	}
	return "propagation", &PropagationError{Layer: s.net.layer, Cause: cause}
}

func (s *Session[S, N]) brokenErr() error {
	return fmt.Errorf("%w: %w", ErrSessionBroken, s.broken)
}

package network

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrdm/gokanscore/pkg/score"
)

type num struct {
	name  string
	value int
}

func (n *num) String() string { return n.name }

type other struct{ value int }

type (
	hsBuilder = Builder[score.HardSoftScore, score.Int32]
	hsStream  = Stream[score.HardSoftScore, score.Int32]
	hsSession = Session[score.HardSoftScore, score.Int32]
)

func hs(hard, soft score.Int32) score.HardSoftScore {
	return score.HardSoftScore{Hard: hard, Soft: soft}
}

func numValue(n *num) int { return n.value }

// pairsByValue joins every num with the nums of a smaller value.
func pairsByValue(b *hsBuilder) *hsStream {
	nums := ForEach[*num](b)
	return nums.Join(nums, GreaterThan(Uni(numValue), Uni(numValue)))
}

func diff(t *Tuple) score.Int32 {
	return score.Int32(FactAs[*num](t, 0).value - FactAs[*num](t, 1).value)
}

func mustScore(t *testing.T, s *hsSession) score.HardSoftScore {
	t.Helper()
	sc, err := s.CalculateScore()
	require.NoError(t, err)
	return sc
}

func TestSession_JoinScenario(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	pairsByValue(b).Impact("diff", hs(-1, 0)).Weigh(diff)
	s, err := NewSession(b)
	require.NoError(t, err)

	a, bb := &num{"A", 5}, &num{"B", 3}
	require.NoError(t, s.Insert(a))
	require.NoError(t, s.Insert(bb))
	assert.Equal(t, "-2hard/0soft", mustScore(t, s).String())

	// Facts of an undeclared type are ignored.
	require.NoError(t, s.Insert(&other{10}))
	assert.Equal(t, hs(-2, 0), mustScore(t, s))

	require.NoError(t, s.Retract(a))
	assert.Equal(t, hs(0, 0), mustScore(t, s))
	require.NoError(t, s.Insert(a))
	assert.Equal(t, hs(-2, 0), mustScore(t, s))

	a.value = 4
	require.NoError(t, s.Update(a))
	assert.Equal(t, hs(-1, 0), mustScore(t, s))

	// The pair flips sides.
	a.value = 2
	require.NoError(t, s.Update(a))
	assert.Equal(t, hs(-1, 0), mustScore(t, s))

	a.value = 3
	require.NoError(t, s.Update(a))
	assert.Equal(t, hs(0, 0), mustScore(t, s))
	assert.Equal(t, 3, s.Len())
}

func TestSession_PenalizeMatchesImpact(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	pairsByValue(b).Penalize("diff", hs(1, 0)).Weigh(diff)
	s, err := NewSession(b)
	require.NoError(t, err)
	require.NoError(t, s.Insert(&num{"A", 5}))
	require.NoError(t, s.Insert(&num{"B", 3}))
	require.NoError(t, s.Insert(&num{"C", 3}))
	assert.Equal(t, hs(-4, 0), mustScore(t, s))
}

func TestSession_BendableSingleLevel(t *testing.T) {
	def, err := score.NewBendableDefinition[score.Int32](2, 1)
	require.NoError(t, err)
	b := NewBuilder(def)
	weight := score.BendableScore{Hard: []score.Int32{-1, 0}, Soft: []score.Int32{0}}
	ForEach[*num](b).Impact("bend", weight).Weigh(func(*Tuple) score.Int32 { return 3 })
	s, err := NewSession(b)
	require.NoError(t, err)
	require.NoError(t, s.Insert(&num{"A", 1}))
	sc, err := s.CalculateScore()
	require.NoError(t, err)
	assert.Equal(t, "[-3/0]hard/[0]soft", sc.String())
}

func TestSession_ExistsScenario(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	value := Uni(numValue)
	otherValue := Uni(func(o *other) int { return o.value })
	nums := ForEach[*num](b)
	nums.IfExists(ForEach[*other](b), Equal(value, otherValue)).Penalize("covered", hs(0, 1))
	nums.IfNotExists(ForEach[*other](b), Equal(value, otherValue)).Penalize("uncovered", hs(1, 0))
	s, err := NewSession(b)
	require.NoError(t, err)

	n := &num{"A", 1}
	o1, o2 := &other{1}, &other{1}
	require.NoError(t, s.Insert(n))
	assert.Equal(t, hs(-1, 0), mustScore(t, s))
	require.NoError(t, s.Insert(o1))
	require.NoError(t, s.Insert(o2))
	assert.Equal(t, hs(0, -1), mustScore(t, s))
	require.NoError(t, s.Retract(o1))
	assert.Equal(t, hs(0, -1), mustScore(t, s))

	o2.value = 2
	require.NoError(t, s.Update(o2))
	assert.Equal(t, hs(-1, 0), mustScore(t, s))

	// Out and back within one batch.
	o2.value = 1
	require.NoError(t, s.Update(o2))
	o2.value = 2
	require.NoError(t, s.Update(o2))
	assert.Equal(t, hs(-1, 0), mustScore(t, s))
}

func TestSession_GroupAndConcat(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	nums := ForEach[*num](b)
	odd := nums.Filter(Uni(func(n *num) bool { return n.value%2 == 1 }))
	odd.Concat(ForEach[*other](b)).
		Aggregate(Count()).
		Penalize("all", hs(0, 1)).
		Weigh(func(t *Tuple) score.Int32 { return score.Int32(FactAs[int](t, 0)) })
	nums.GroupBy(func(t *Tuple) any { return numValue(FactAs[*num](t, 0)) }, ToList(func(t *Tuple) any { return t.Fact(0) })).
		Filter(func(t *Tuple) bool { return len(FactAs[[]any](t, 1)) > 1 }).
		Penalize("duplicate", hs(1, 0))
	s, err := NewSession(b)
	require.NoError(t, err)
	assert.Equal(t, hs(0, 0), mustScore(t, s))

	a, c, o := &num{"A", 1}, &num{"C", 1}, &other{4}
	for _, f := range []any{a, c, o} {
		require.NoError(t, s.Insert(f))
	}
	assert.Equal(t, hs(-1, -3), mustScore(t, s))

	c.value = 2
	require.NoError(t, s.Update(c))
	assert.Equal(t, hs(0, -2), mustScore(t, s))
	require.NoError(t, s.Retract(o))
	require.NoError(t, s.Retract(a))
	assert.Equal(t, hs(0, 0), mustScore(t, s))
}

func TestSession_FilteredExistsRetract(t *testing.T) {
	below := Filtering(func(l, r *Tuple) bool {
		return FactAs[*num](l, 0).value < FactAs[*other](r, 0).value
	})
	tests := []struct {
		name        string
		exists      bool
		with, alone score.HardSoftScore
	}{
		{name: "if exists", exists: true, with: hs(-1, 0), alone: hs(0, 0)},
		{name: "if not exists", exists: false, with: hs(0, 0), alone: hs(-1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
			nums, others := ForEach[*num](b), ForEach[*other](b)
			if tt.exists {
				nums.IfExists(others, below).Penalize("below", hs(1, 0))
			} else {
				nums.IfNotExists(others, below).Penalize("below", hs(1, 0))
			}
			s, err := NewSession(b)
			require.NoError(t, err)

			a, o := &num{"A", 1}, &other{4}
			require.NoError(t, s.Insert(a))
			require.NoError(t, s.Insert(o))
			assert.Equal(t, tt.with, mustScore(t, s))

			require.NoError(t, s.Retract(o))
			assert.Equal(t, tt.alone, mustScore(t, s))

			require.NoError(t, s.Insert(o))
			assert.Equal(t, tt.with, mustScore(t, s))
			o.value = 0
			require.NoError(t, s.Update(o))
			assert.Equal(t, tt.alone, mustScore(t, s))
			o.value = 2
			require.NoError(t, s.Update(o))
			require.NoError(t, s.Retract(o))
			require.NoError(t, s.Retract(a))
			assert.Equal(t, hs(0, 0), mustScore(t, s))
			assert.NoError(t, s.Err())
		})
	}
}

func TestSession_CollectedGroupsInExplanations(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	ForEach[*num](b).
		GroupBy(func(t *Tuple) any { return numValue(FactAs[*num](t, 0)) },
			ToList(func(t *Tuple) any { return t.Fact(0) }),
			ToSet(func(t *Tuple) any { return FactAs[*num](t, 0).name })).
		Penalize("group", hs(0, 1))
	s, err := NewSession(b, WithConstraintMatch(true))
	require.NoError(t, err)

	a := &num{"A", 1}
	require.NoError(t, s.Insert(a))
	assert.Equal(t, hs(0, -1), mustScore(t, s))

	totals, err := s.ConstraintMatchTotals()
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 1, totals[0].Len())

	// Only the group key is blamed.
	inds, err := s.Indictments()
	require.NoError(t, err)
	require.Len(t, inds, 1)
	assert.Equal(t, 1, inds[0].Object)
	_, ok, err := s.Indictment([]any{a})
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Indictment(map[any]struct{}{"A": {}})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Insert(&num{"B", 1}))
	a.value = 2
	require.NoError(t, s.Update(a))
	assert.Equal(t, hs(0, -2), mustScore(t, s))
	summary, err := s.Summary(5)
	require.NoError(t, err)
	assert.Contains(t, summary, "constraint (group) has 2 matches")
}

type priced struct {
	name   string
	amount decimal.Decimal
}

func TestSession_EqualJoinerKeys(t *testing.T) {
	t.Run("decimal values", func(t *testing.T) {
		amount := Uni(func(p *priced) decimal.Decimal { return p.amount })
		name := Uni(func(p *priced) string { return p.name })
		b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
		prices := ForEach[*priced](b)
		prices.Join(prices, Equal(amount, amount), LessThan(name, name)).Penalize("same", hs(1, 0))
		s, err := NewSession(b)
		require.NoError(t, err)

		a := &priced{"A", decimal.RequireFromString("1.50")}
		c := &priced{"B", decimal.NewFromInt(3).Div(decimal.NewFromInt(2))}
		require.NoError(t, s.Insert(a))
		require.NoError(t, s.Insert(c))
		assert.Equal(t, hs(-1, 0), mustScore(t, s))

		a.amount = decimal.RequireFromString("1.500")
		require.NoError(t, s.Update(a))
		assert.Equal(t, hs(-1, 0), mustScore(t, s))
		a.amount = decimal.NewFromInt(2)
		require.NoError(t, s.Update(a))
		assert.Equal(t, hs(0, 0), mustScore(t, s))
		require.NoError(t, s.Retract(a))
		assert.NoError(t, s.Err())
	})
	t.Run("NaN", func(t *testing.T) {
		key := Uni(func(n *num) float64 {
			if n.value < 0 {
				return math.NaN()
			}
			return float64(n.value)
		})
		b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
		nums := ForEach[*num](b)
		nums.Join(nums, Equal(key, key)).Penalize("same", hs(1, 0))
		s, err := NewSession(b)
		require.NoError(t, err)

		require.NoError(t, s.Insert(&num{"A", 1}))
		assert.Equal(t, hs(-1, 0), mustScore(t, s))
		require.NoError(t, s.Insert(&num{"B", -1}))
		_, err = s.CalculateScore()
		assert.ErrorIs(t, err, ErrContractViolation)
		assert.ErrorContains(t, err, "not equal to itself")
	})
}

func TestSession_ContractErrorsKeepSessionUsable(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	pairsByValue(b).Penalize("diff", hs(1, 0))
	s, err := NewSession(b)
	require.NoError(t, err)

	a := &num{"A", 1}
	assert.ErrorIs(t, s.Insert(nil), ErrContractViolation)
	assert.ErrorIs(t, s.Insert([]int{1}), ErrContractViolation)
	assert.ErrorIs(t, s.Update(a), ErrContractViolation)
	assert.ErrorIs(t, s.Retract(a), ErrContractViolation)
	require.NoError(t, s.Insert(a))
	assert.ErrorIs(t, s.Insert(a), ErrContractViolation)

	assert.NoError(t, s.Err())
	require.NoError(t, s.Insert(&num{"B", 0}))
	assert.Equal(t, hs(-1, 0), mustScore(t, s))
}

func TestSession_ImpactFailureBreaksSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	var logs bytes.Buffer
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	pairsByValue(b).Penalize("diff", hs(1, 0)).Weigh(func(t *Tuple) score.Int32 {
		panic("weigh failed")
	})
	s, err := NewSession(b, WithMetrics(metrics), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	require.NoError(t, s.Insert(&num{"A", 2}))
	require.NoError(t, s.Insert(&num{"B", 1}))
	_, err = s.CalculateScore()
	var impact *ImpactError
	require.ErrorAs(t, err, &impact)
	assert.Equal(t, "diff", impact.Constraint)
	assert.Len(t, impact.Facts, 2)
	assert.Contains(t, impact.Error(), "weigh failed")
	assert.Same(t, impact, s.Err())

	err = s.Insert(&num{"C", 0})
	assert.ErrorIs(t, err, ErrSessionBroken)
	assert.ErrorAs(t, err, &impact)
	_, err = s.CalculateScore()
	assert.ErrorIs(t, err, ErrSessionBroken)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.brokenSessions.WithLabelValues("impact")))
	assert.Contains(t, logs.String(), "session broken")
}

func TestSession_NegativeMatchWeight(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	pairsByValue(b).Reward("diff", hs(0, 1)).Weigh(func(t *Tuple) score.Int32 { return -diff(t) })
	s, err := NewSession(b)
	require.NoError(t, err)
	require.NoError(t, s.Insert(&num{"A", 2}))
	require.NoError(t, s.Insert(&num{"B", 1}))
	_, err = s.CalculateScore()
	assert.ErrorIs(t, err, ErrNegativeMatchWeight)
	assert.ErrorIs(t, s.Err(), ErrNegativeMatchWeight)
}

func TestSession_PropagationFailureNamesLayer(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	pairsByValue(b).
		Filter(func(t *Tuple) bool { panic(errors.New("filter failed")) }).
		Penalize("diff", hs(1, 0))
	s, err := NewSession(b)
	require.NoError(t, err)
	require.NoError(t, s.Insert(&num{"A", 2}))
	require.NoError(t, s.Insert(&num{"B", 1}))

	err = s.Settle()
	var prop *PropagationError
	require.ErrorAs(t, err, &prop)
	assert.Equal(t, 1, prop.Layer)
	assert.EqualError(t, prop.Cause, "filter failed")
	assert.ErrorIs(t, s.Retract(&num{"Z", 0}), ErrSessionBroken)
}

func TestSession_RuntimeFaultKeepsItsKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	var empty []int
	ForEach[*num](b).
		Filter(func(t *Tuple) bool { return empty[FactAs[*num](t, 0).value] > 0 }).
		Penalize("indexed", hs(1, 0))
	s, err := NewSession(b, WithMetrics(metrics))
	require.NoError(t, err)
	require.NoError(t, s.Insert(&num{"A", 2}))

	_, err = s.CalculateScore()
	var prop *PropagationError
	require.ErrorAs(t, err, &prop)
	assert.Zero(t, prop.Layer)
	var fault runtime.Error
	assert.ErrorAs(t, err, &fault)
	assert.NotErrorIs(t, err, ErrContractViolation)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.brokenSessions.WithLabelValues("runtime")))
	assert.Zero(t, testutil.ToFloat64(metrics.brokenSessions.WithLabelValues("propagation")))
}

func TestNewSession_Errors(t *testing.T) {
	def := score.NewHardSoftDefinition[score.Int32]()
	tests := []struct {
		name  string
		build func(b *hsBuilder)
		opts  []SessionOption
		want  error
	}{
		{
			name: "duplicate constraint",
			build: func(b *hsBuilder) {
				ForEach[*num](b).Penalize("x", hs(1, 0))
				ForEach[*other](b).Penalize("x", hs(1, 0))
			},
			want: ErrDuplicateConstraint,
		},
		{
			name:  "negative penalty",
			build: func(b *hsBuilder) { ForEach[*num](b).Penalize("x", hs(0, -1)) },
			want:  ErrNegativeWeight,
		},
		{
			name:  "override of unknown constraint",
			build: func(b *hsBuilder) { ForEach[*num](b).Penalize("x", hs(1, 0)) },
			opts:  []SessionOption{WithConstraintWeight("y", hs(1, 0))},
			want:  ErrInvalidWeight,
		},
		{
			name:  "override of the wrong type",
			build: func(b *hsBuilder) { ForEach[*num](b).Penalize("x", hs(1, 0)) },
			opts:  []SessionOption{WithConstraintWeight("x", 1)},
			want:  ErrInvalidWeight,
		},
		{
			name:  "map without mappings",
			build: func(b *hsBuilder) { ForEach[*num](b).Map().Penalize("x", hs(1, 0)) },
			want:  ErrInvalidStream,
		},
		{
			name:  "constraint without name",
			build: func(b *hsBuilder) { ForEach[*num](b).Penalize("", hs(1, 0)) },
			want:  ErrInvalidStream,
		},
		{
			name: "join of a foreign stream",
			build: func(b *hsBuilder) {
				foreign := ForEach[*num](NewBuilder(def))
				ForEach[*num](b).Join(foreign).Penalize("x", hs(1, 0))
			},
			want: ErrInvalidStream,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(def)
			tt.build(b)
			_, err := NewSession(b, tt.opts...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewSession_ZeroWeightDisablesConstraint(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	ForEach[*num](b).Penalize("off", hs(0, 0))
	pairsByValue(b).Penalize("diff", hs(1, 0)).InPackage("demo")
	monitor := NewMonitor()

	s, err := NewSession(b, WithLogger(logger), WithMonitor(monitor),
		WithConstraintWeight("demo/diff", hs(0, 0)))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "constraint disabled by zero weight")
	assert.Contains(t, logs.String(), "constraint=demo/diff")
	assert.Zero(t, monitor.Stats().Constraints)
	assert.Zero(t, monitor.Stats().Nodes)

	require.NoError(t, s.Insert(&num{"A", 2}))
	require.NoError(t, s.Insert(&num{"B", 1}))
	assert.Equal(t, hs(0, 0), mustScore(t, s))
}

func TestSession_WeightOverride(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	pairsByValue(b).Penalize("diff", hs(1, 0)).InPackage("demo")
	s, err := NewSession(b, WithConstraintWeight("demo/diff", hs(0, 3)))
	require.NoError(t, err)
	require.NoError(t, s.Insert(&num{"A", 2}))
	require.NoError(t, s.Insert(&num{"B", 1}))
	assert.Equal(t, hs(0, -3), mustScore(t, s))
}

func TestSession_Explanations(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	pairsByValue(b).Penalize("diff", hs(1, 0)).Weigh(diff).InPackage("demo")
	ForEach[*num](b).Reward("count", hs(0, 1))
	s, err := NewSession(b, WithConstraintMatch(true))
	require.NoError(t, err)

	a, c := &num{"A", 5}, &num{"B", 3}
	require.NoError(t, s.Insert(a))
	require.NoError(t, s.Insert(c))

	totals, err := s.ConstraintMatchTotals()
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "count", totals[0].Ref.ID())
	assert.Equal(t, hs(0, 2), totals[0].Score())
	assert.Equal(t, "demo/diff", totals[1].Ref.ID())
	assert.Equal(t, hs(-2, 0), totals[1].Score())
	assert.Equal(t, 1, totals[1].Len())

	ind, ok, err := s.Indictment(a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hs(-2, 1), ind.Score())
	assert.Equal(t, 2, ind.Len())

	inds, err := s.Indictments()
	require.NoError(t, err)
	assert.Len(t, inds, 2)

	summary, err := s.Summary(5)
	require.NoError(t, err)
	assert.Contains(t, summary, "-2hard/2soft")
	assert.Contains(t, summary, "constraint (demo/diff) has 1 matches")

	require.NoError(t, s.Retract(a))
	_, ok, err = s.Indictment(a)
	require.NoError(t, err)
	assert.False(t, ok)
	totals, err = s.ConstraintMatchTotals()
	require.NoError(t, err)
	require.Len(t, totals, 1)
}

func TestSession_ExplanationsNeedMatchTracking(t *testing.T) {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	pairsByValue(b).Penalize("diff", hs(1, 0))
	s, err := NewSession(b)
	require.NoError(t, err)

	_, err = s.ConstraintMatchTotals()
	assert.ErrorIs(t, err, ErrMatchTrackingDisabled)
	_, err = s.Indictments()
	assert.ErrorIs(t, err, ErrMatchTrackingDisabled)
	_, _, err = s.Indictment(1)
	assert.ErrorIs(t, err, ErrMatchTrackingDisabled)
	_, err = s.Summary(0)
	assert.ErrorIs(t, err, ErrMatchTrackingDisabled)
}

func TestSession_MetricsAndStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	monitor := NewMonitor()
	b := NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	pairsByValue(b).Penalize("diff", hs(1, 0))
	s, err := NewSession(b, WithMetrics(metrics), WithMonitor(monitor))
	require.NoError(t, err)

	a := &num{"A", 2}
	require.NoError(t, s.Insert(a))
	require.NoError(t, s.Insert(&num{"B", 1}))
	mustScore(t, s)
	require.NoError(t, s.Update(a))
	require.NoError(t, s.Retract(a))
	mustScore(t, s)
	// Nothing pending: no settle pass is recorded.
	mustScore(t, s)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.factOps.WithLabelValues(opInsert)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.factOps.WithLabelValues(opRetract)))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.scoreCalculations))

	stats := s.Stats()
	assert.Equal(t, 2, stats.Inserts)
	assert.Equal(t, 1, stats.Updates)
	assert.Equal(t, 1, stats.Retracts)
	assert.Equal(t, 2, stats.Settles)
	assert.Equal(t, 3, stats.ScoreCalculations)
	assert.Equal(t, 2, stats.Nodes)
	assert.Equal(t, 2, stats.Layers)
	assert.Equal(t, 1, stats.Constraints)
	assert.Positive(t, stats.Propagations)
	assert.Positive(t, stats.PeakQueueSize)

	monitor.Reset()
	assert.Zero(t, monitor.Stats().Inserts)
}

type shift struct {
	id       int
	employee int
	day      int
}

type absence struct {
	employee int
	day      int
}

type (
	rosterScore   = score.HardSoftLongScore
	rosterSession = Session[rosterScore, score.Int64]
)

func hsl(hard, soft int64) rosterScore {
	return rosterScore{Hard: score.Int64(hard), Soft: score.Int64(soft)}
}

func shiftAt(t *Tuple, i int) *shift     { return FactAs[*shift](t, i) }
func absenceAt(t *Tuple, i int) *absence { return FactAs[*absence](t, i) }

func sameSlot(s *shift, a *absence) bool {
	return s.employee == a.employee && s.day == a.day
}

// buildRoster declares the roster constraints. Without indexing every join
// is a single filtering joiner over the whole opposite side.
func buildRoster(indexed bool) *Builder[rosterScore, score.Int64] {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int64]())
	joiners := func(test func(l, r *Tuple) bool, indexing ...Joiner) []Joiner {
		if indexed {
			return indexing
		}
		return []Joiner{Filtering(test)}
	}
	shiftEmployee := Uni(func(s *shift) int { return s.employee })
	shiftDay := Uni(func(s *shift) int { return s.day })
	shiftID := Uni(func(s *shift) int { return s.id })
	absenceEmployee := Uni(func(a *absence) int { return a.employee })
	absenceDay := Uni(func(a *absence) int { return a.day })

	shifts := ForEach[*shift](b)
	absences := ForEach[*absence](b)

	shifts.Join(shifts, joiners(func(l, r *Tuple) bool {
		a, c := shiftAt(l, 0), shiftAt(r, 0)
		return a.employee == c.employee && a.day == c.day && a.id < c.id
	}, Equal(shiftEmployee, shiftEmployee), Equal(shiftDay, shiftDay), LessThan(shiftID, shiftID))...).
		Penalize("overlap", hsl(1, 0))

	shifts.IfExists(absences, joiners(func(l, r *Tuple) bool {
		return sameSlot(shiftAt(l, 0), absenceAt(r, 0))
	}, Equal(shiftEmployee, absenceEmployee), Equal(shiftDay, absenceDay))...).
		Penalize("absent", hsl(1, 0))

	shifts.GroupBy(func(t *Tuple) any { return shiftAt(t, 0).employee }, Count()).
		Penalize("load", hsl(0, 1)).
		Weigh(func(t *Tuple) score.Int64 {
			c := score.Int64(FactAs[int](t, 1))
			return c * c
		})

	absences.IfNotExists(shifts, joiners(func(l, r *Tuple) bool {
		return sameSlot(shiftAt(r, 0), absenceAt(l, 0))
	}, Equal(absenceEmployee, shiftEmployee), Equal(absenceDay, shiftDay))...).
		Reward("idle", hsl(0, 1))

	shifts.Join(absences, joiners(func(l, r *Tuple) bool {
		return shiftAt(l, 0).employee == absenceAt(r, 0).employee
	}, Equal(shiftEmployee, absenceEmployee))...).
		Impact("distance", hsl(0, 1)).
		Weigh(func(t *Tuple) score.Int64 { return score.Int64(shiftAt(t, 0).day - absenceAt(t, 1).day) })

	shifts.Filter(func(t *Tuple) bool { return shiftAt(t, 0).day < 3 }).
		Map(func(t *Tuple) any { return shiftAt(t, 0).employee }).
		Concat(absences.Map(func(t *Tuple) any { return absenceAt(t, 0).employee })).
		GroupBy(func(t *Tuple) any { return t.Fact(0) }, Count()).
		Penalize("busy", hsl(0, 1)).
		Weigh(func(t *Tuple) score.Int64 { return score.Int64(FactAs[int](t, 1)) })

	ForEachFiltered[*shift](b, func(s *shift) bool { return s.day == 4 }).
		Penalize("friday", hsl(0, 1))

	shifts.Aggregate(Sum(func(t *Tuple) int64 { return int64(shiftAt(t, 0).day) })).
		Reward("effort", hsl(0, 1)).
		Weigh(func(t *Tuple) score.Int64 { return score.Int64(FactAs[int64](t, 0)) })
	return b
}

// scoreRoster recalculates the roster score from scratch.
func scoreRoster(shifts []*shift, absences []*absence) rosterScore {
	var hard, soft int64
	for _, a := range shifts {
		for _, c := range shifts {
			if a.employee == c.employee && a.day == c.day && a.id < c.id {
				hard--
			}
		}
	}
	for _, s := range shifts {
		if slices.ContainsFunc(absences, func(a *absence) bool { return sameSlot(s, a) }) {
			hard--
		}
	}
	load := make(map[int]int64)
	for _, s := range shifts {
		load[s.employee]++
	}
	for _, c := range load {
		soft -= c * c
	}
	for _, a := range absences {
		if !slices.ContainsFunc(shifts, func(s *shift) bool { return sameSlot(s, a) }) {
			soft++
		}
	}
	for _, s := range shifts {
		for _, a := range absences {
			if s.employee == a.employee {
				soft += int64(s.day - a.day)
			}
		}
	}
	busy := make(map[int]int64)
	for _, s := range shifts {
		if s.day < 3 {
			busy[s.employee]++
		}
	}
	for _, a := range absences {
		busy[a.employee]++
	}
	for _, c := range busy {
		soft -= c
	}
	for _, s := range shifts {
		if s.day == 4 {
			soft--
		}
		soft += int64(s.day)
	}
	return hsl(hard, soft)
}

func TestSession_IncrementalScoreMatchesRecalculation(t *testing.T) {
	var sessions []*rosterSession
	for _, indexed := range []bool{true, false} {
		s, err := NewSession(buildRoster(indexed))
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	var (
		shiftsLive   []*shift
		absencesLive []*absence
	)
	apply := func(op func(s *rosterSession) error) {
		for _, s := range sessions {
			require.NoError(t, op(s))
		}
	}
	check := func(step int) {
		want := scoreRoster(shiftsLive, absencesLive)
		for i, s := range sessions {
			got, err := s.CalculateScore()
			require.NoError(t, err)
			require.Equal(t, want, got, "session %d after step %d", i, step)
		}
	}

	rng := rand.New(rand.NewPCG(7, 11))
	nextID := 0
	for step := 0; step < 800; step++ {
		switch k := rng.IntN(10); {
		case k < 3:
			s := &shift{id: nextID, employee: rng.IntN(4), day: rng.IntN(5)}
			nextID++
			shiftsLive = append(shiftsLive, s)
			apply(func(ss *rosterSession) error { return ss.Insert(s) })
		case k < 4:
			a := &absence{employee: rng.IntN(4), day: rng.IntN(5)}
			absencesLive = append(absencesLive, a)
			apply(func(ss *rosterSession) error { return ss.Insert(a) })
		case k < 7 && len(shiftsLive) > 0:
			s := shiftsLive[rng.IntN(len(shiftsLive))]
			if rng.IntN(2) == 0 {
				s.employee = rng.IntN(4)
			} else {
				s.day = rng.IntN(5)
			}
			apply(func(ss *rosterSession) error { return ss.Update(s) })
		case k < 8 && len(absencesLive) > 0:
			a := absencesLive[rng.IntN(len(absencesLive))]
			a.day = rng.IntN(5)
			apply(func(ss *rosterSession) error { return ss.Update(a) })
		case k < 9 && len(shiftsLive) > 0:
			i := rng.IntN(len(shiftsLive))
			s := shiftsLive[i]
			shiftsLive = slices.Delete(shiftsLive, i, i+1)
			apply(func(ss *rosterSession) error { return ss.Retract(s) })
		case len(absencesLive) > 0:
			i := rng.IntN(len(absencesLive))
			a := absencesLive[i]
			absencesLive = slices.Delete(absencesLive, i, i+1)
			apply(func(ss *rosterSession) error { return ss.Retract(a) })
		}
		// Let mutations pile up between reads now and then.
		if rng.IntN(4) == 0 {
			check(step)
		}
	}
	check(-1)

	// Draining every fact brings the score back to zero.
	for _, s := range shiftsLive {
		apply(func(ss *rosterSession) error { return ss.Retract(s) })
	}
	for _, a := range absencesLive {
		apply(func(ss *rosterSession) error { return ss.Retract(a) })
	}
	shiftsLive, absencesLive = nil, nil
	check(-2)
	assert.Equal(t, hsl(0, 0), scoreRoster(nil, nil))
}

// buildLeaveRoster declares constraints whose nodes mix equal, comparison
// and filtering joiners. Without indexing only the filters remain.
func buildLeaveRoster(indexed bool) *Builder[rosterScore, score.Int64] {
	b := NewBuilder(score.NewHardSoftDefinition[score.Int64]())
	joiners := func(test func(l, r *Tuple) bool, indexing ...Joiner) []Joiner {
		if indexed {
			return append(indexing, Filtering(test))
		}
		return []Joiner{Filtering(test)}
	}
	shiftEmployee := Uni(func(s *shift) int { return s.employee })
	shiftDay := Uni(func(s *shift) int { return s.day })
	shiftID := Uni(func(s *shift) int { return s.id })
	absenceEmployee := Uni(func(a *absence) int { return a.employee })
	absenceDay := Uni(func(a *absence) int { return a.day })

	shifts := ForEach[*shift](b)
	absences := ForEach[*absence](b)

	shifts.Join(shifts, joiners(func(l, r *Tuple) bool {
		a, c := shiftAt(l, 0), shiftAt(r, 0)
		if !indexed && (a.employee != c.employee || a.id >= c.id) {
			return false
		}
		return a.day == c.day
	}, Equal(shiftEmployee, shiftEmployee), LessThan(shiftID, shiftID))...).
		Penalize("overlap", hsl(1, 0))

	shifts.IfExists(absences, joiners(func(l, r *Tuple) bool {
		s, a := shiftAt(l, 0), absenceAt(r, 0)
		if !indexed && (s.employee != a.employee || s.day >= a.day) {
			return false
		}
		return a.day-s.day <= 2
	}, Equal(shiftEmployee, absenceEmployee), LessThan(shiftDay, absenceDay))...).
		Penalize("leave", hsl(1, 0))

	absences.IfNotExists(shifts, joiners(func(l, r *Tuple) bool {
		a, s := absenceAt(l, 0), shiftAt(r, 0)
		if !indexed && (a.employee != s.employee || a.day >= s.day) {
			return false
		}
		return s.id%2 == 0
	}, Equal(absenceEmployee, shiftEmployee), LessThan(absenceDay, shiftDay))...).
		Reward("calm", hsl(0, 1))

	shifts.GroupBy(func(t *Tuple) any { return shiftAt(t, 0).employee },
		ToList(func(t *Tuple) any { return t.Fact(0) })).
		Penalize("load", hsl(0, 1)).
		Weigh(func(t *Tuple) score.Int64 { return score.Int64(len(FactAs[[]any](t, 1))) })
	return b
}

// scoreLeaveRoster recalculates the leave roster score from scratch.
func scoreLeaveRoster(shifts []*shift, absences []*absence) rosterScore {
	var hard, soft int64
	for _, a := range shifts {
		for _, c := range shifts {
			if a.employee == c.employee && a.id < c.id && a.day == c.day {
				hard--
			}
		}
	}
	for _, s := range shifts {
		if slices.ContainsFunc(absences, func(a *absence) bool {
			return s.employee == a.employee && s.day < a.day && a.day-s.day <= 2
		}) {
			hard--
		}
	}
	for _, a := range absences {
		if !slices.ContainsFunc(shifts, func(s *shift) bool {
			return a.employee == s.employee && a.day < s.day && s.id%2 == 0
		}) {
			soft++
		}
	}
	soft -= int64(len(shifts))
	return hsl(hard, soft)
}

func TestSession_MatchTotalsFollowScore(t *testing.T) {
	var sessions []*rosterSession
	for _, indexed := range []bool{true, false} {
		s, err := NewSession(buildLeaveRoster(indexed), WithConstraintMatch(true))
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	var (
		shiftsLive   []*shift
		absencesLive []*absence
	)
	apply := func(op func(s *rosterSession) error) {
		for _, s := range sessions {
			require.NoError(t, op(s))
		}
	}
	check := func(step int) {
		want := scoreLeaveRoster(shiftsLive, absencesLive)
		for i, s := range sessions {
			got, err := s.CalculateScore()
			require.NoError(t, err)
			require.Equal(t, want, got, "session %d after step %d", i, step)

			totals, err := s.ConstraintMatchTotals()
			require.NoError(t, err)
			var sum rosterScore
			for _, total := range totals {
				require.Positive(t, total.Len(), "empty total %s after step %d", total.Ref, step)
				sum = sum.Add(total.Score())
			}
			require.Equal(t, got, sum, "session %d totals after step %d", i, step)

			inds, err := s.Indictments()
			require.NoError(t, err)
			for _, ind := range inds {
				require.Positive(t, ind.Len(), "empty indictment of %v after step %d", ind.Object, step)
			}
		}
	}

	rng := rand.New(rand.NewPCG(3, 5))
	nextID := 0
	for step := 0; step < 600; step++ {
		switch k := rng.IntN(10); {
		case k < 3:
			s := &shift{id: nextID, employee: rng.IntN(3), day: rng.IntN(6)}
			nextID++
			shiftsLive = append(shiftsLive, s)
			apply(func(ss *rosterSession) error { return ss.Insert(s) })
		case k < 5:
			a := &absence{employee: rng.IntN(3), day: rng.IntN(6)}
			absencesLive = append(absencesLive, a)
			apply(func(ss *rosterSession) error { return ss.Insert(a) })
		case k < 7 && len(shiftsLive) > 0:
			s := shiftsLive[rng.IntN(len(shiftsLive))]
			if rng.IntN(2) == 0 {
				s.employee = rng.IntN(3)
			} else {
				s.day = rng.IntN(6)
			}
			apply(func(ss *rosterSession) error { return ss.Update(s) })
		case k < 8 && len(absencesLive) > 0:
			a := absencesLive[rng.IntN(len(absencesLive))]
			a.day = rng.IntN(6)
			apply(func(ss *rosterSession) error { return ss.Update(a) })
		case k < 9 && len(shiftsLive) > 0:
			i := rng.IntN(len(shiftsLive))
			s := shiftsLive[i]
			shiftsLive = slices.Delete(shiftsLive, i, i+1)
			apply(func(ss *rosterSession) error { return ss.Retract(s) })
		case len(absencesLive) > 0:
			i := rng.IntN(len(absencesLive))
			a := absencesLive[i]
			absencesLive = slices.Delete(absencesLive, i, i+1)
			apply(func(ss *rosterSession) error { return ss.Retract(a) })
		}
		if rng.IntN(3) == 0 {
			check(step)
		}
	}
	check(-1)
}

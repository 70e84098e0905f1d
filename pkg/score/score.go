package score

import (
	"fmt"
	"strings"
)

// Score is implemented by every score shape.
type Score[S any] interface {
	Add(S) S
	Subtract(S) S
	Negate() S
	IsZero() bool
	IsFeasible() bool
	Compare(S) int
	String() string
}

// LevelMismatchError reports arithmetic between scores with different level
// layouts.
type LevelMismatchError struct {
	Left, Right string
}

func (e *LevelMismatchError) Error() string {
	return fmt.Sprintf("score: level mismatch between %s and %s", e.Left, e.Right)
}

// Simple has a single soft level.
type Simple[N Number[N]] struct {
	Score N
}

func (s Simple[N]) Add(o Simple[N]) Simple[N]      { return Simple[N]{s.Score.Add(o.Score)} }
func (s Simple[N]) Subtract(o Simple[N]) Simple[N] { return Simple[N]{s.Score.Sub(o.Score)} }
func (s Simple[N]) Negate() Simple[N]              { return Simple[N]{s.Score.Neg()} }
func (s Simple[N]) IsZero() bool                   { return s.Score.IsZero() }
func (s Simple[N]) Compare(o Simple[N]) int        { return s.Score.Cmp(o.Score) }
func (s Simple[N]) String() string                 { return s.Score.String() }

// IsFeasible is always true: a simple score has no hard level.
func (s Simple[N]) IsFeasible() bool { return true }

// HardSoft has one hard and one soft level.
type HardSoft[N Number[N]] struct {
	Hard N
	Soft N
}

func (s HardSoft[N]) Add(o HardSoft[N]) HardSoft[N] {
	return HardSoft[N]{s.Hard.Add(o.Hard), s.Soft.Add(o.Soft)}
}

func (s HardSoft[N]) Subtract(o HardSoft[N]) HardSoft[N] {
	return HardSoft[N]{s.Hard.Sub(o.Hard), s.Soft.Sub(o.Soft)}
}

func (s HardSoft[N]) Negate() HardSoft[N] { return HardSoft[N]{s.Hard.Neg(), s.Soft.Neg()} }
func (s HardSoft[N]) IsZero() bool        { return s.Hard.IsZero() && s.Soft.IsZero() }
func (s HardSoft[N]) IsFeasible() bool    { return s.Hard.Sign() >= 0 }

func (s HardSoft[N]) Compare(o HardSoft[N]) int {
	if c := s.Hard.Cmp(o.Hard); c != 0 {
		return c
	}
	return s.Soft.Cmp(o.Soft)
}

func (s HardSoft[N]) String() string {
	return s.Hard.String() + "hard/" + s.Soft.String() + "soft"
}

// HardMediumSoft has one hard, one medium and one soft level.
type HardMediumSoft[N Number[N]] struct {
	Hard   N
	Medium N
	Soft   N
}

func (s HardMediumSoft[N]) Add(o HardMediumSoft[N]) HardMediumSoft[N] {
	return HardMediumSoft[N]{s.Hard.Add(o.Hard), s.Medium.Add(o.Medium), s.Soft.Add(o.Soft)}
}

func (s HardMediumSoft[N]) Subtract(o HardMediumSoft[N]) HardMediumSoft[N] {
	return HardMediumSoft[N]{s.Hard.Sub(o.Hard), s.Medium.Sub(o.Medium), s.Soft.Sub(o.Soft)}
}

func (s HardMediumSoft[N]) Negate() HardMediumSoft[N] {
	return HardMediumSoft[N]{s.Hard.Neg(), s.Medium.Neg(), s.Soft.Neg()}
}

func (s HardMediumSoft[N]) IsZero() bool {
	return s.Hard.IsZero() && s.Medium.IsZero() && s.Soft.IsZero()
}

func (s HardMediumSoft[N]) IsFeasible() bool { return s.Hard.Sign() >= 0 }

func (s HardMediumSoft[N]) Compare(o HardMediumSoft[N]) int {
	if c := s.Hard.Cmp(o.Hard); c != 0 {
		return c
	}
	if c := s.Medium.Cmp(o.Medium); c != 0 {
		return c
	}
	return s.Soft.Cmp(o.Soft)
}

func (s HardMediumSoft[N]) String() string {
	return s.Hard.String() + "hard/" + s.Medium.String() + "medium/" + s.Soft.String() + "soft"
}

// Bendable has a configurable number of hard and soft levels. Two bendable
// scores can only be combined when their level counts agree; arithmetic on
// mismatched scores panics with a *LevelMismatchError. Use Compatible to
// check beforehand.
type Bendable[N Number[N]] struct {
	Hard []N
	Soft []N
}

// NewBendable returns the zero bendable score with the given level counts.
func NewBendable[N Number[N]](hardLevels, softLevels int) Bendable[N] {
	return Bendable[N]{Hard: make([]N, hardLevels), Soft: make([]N, softLevels)}
}

// Compatible returns an error when o has a different level layout.
func (s Bendable[N]) Compatible(o Bendable[N]) error {
	if len(s.Hard) != len(o.Hard) || len(s.Soft) != len(o.Soft) {
		return &LevelMismatchError{Left: s.layout(), Right: o.layout()}
	}
	return nil
}

func (s Bendable[N]) layout() string {
	return fmt.Sprintf("bendable(%d hard, %d soft)", len(s.Hard), len(s.Soft))
}

func (s Bendable[N]) mustMatch(o Bendable[N]) {
	if err := s.Compatible(o); err != nil {
		panic(err)
	}
}

func (s Bendable[N]) combine(o Bendable[N], op func(a, b N) N) Bendable[N] {
	s.mustMatch(o)
	out := NewBendable[N](len(s.Hard), len(s.Soft))
	for i := range s.Hard {
		out.Hard[i] = op(s.Hard[i], o.Hard[i])
	}
	for i := range s.Soft {
		out.Soft[i] = op(s.Soft[i], o.Soft[i])
	}
	return out
}

func (s Bendable[N]) Add(o Bendable[N]) Bendable[N] {
	return s.combine(o, func(a, b N) N { return a.Add(b) })
}

func (s Bendable[N]) Subtract(o Bendable[N]) Bendable[N] {
	return s.combine(o, func(a, b N) N { return a.Sub(b) })
}

func (s Bendable[N]) Negate() Bendable[N] {
	out := NewBendable[N](len(s.Hard), len(s.Soft))
	for i, v := range s.Hard {
		out.Hard[i] = v.Neg()
	}
	for i, v := range s.Soft {
		out.Soft[i] = v.Neg()
	}
	return out
}

func (s Bendable[N]) IsZero() bool {
	for _, v := range s.Hard {
		if !v.IsZero() {
			return false
		}
	}
	for _, v := range s.Soft {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

func (s Bendable[N]) IsFeasible() bool {
	for _, v := range s.Hard {
		if v.Sign() < 0 {
			return false
		}
	}
	return true
}

func (s Bendable[N]) Compare(o Bendable[N]) int {
	s.mustMatch(o)
	for i := range s.Hard {
		if c := s.Hard[i].Cmp(o.Hard[i]); c != 0 {
			return c
		}
	}
	for i := range s.Soft {
		if c := s.Soft[i].Cmp(o.Soft[i]); c != 0 {
			return c
		}
	}
	return 0
}

// String formats the score as [h0/h1/...]hard/[s0/...]soft.
func (s Bendable[N]) String() string {
	var sb strings.Builder
	writeBracketed(&sb, s.Hard)
	sb.WriteString("hard/")
	writeBracketed(&sb, s.Soft)
	sb.WriteString("soft")
	return sb.String()
}

func writeBracketed[N Number[N]](sb *strings.Builder, levels []N) {
	sb.WriteByte('[')
	for i, v := range levels {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(v.String())
	}
	sb.WriteByte(']')
}

type (
	SimpleScore                = Simple[Int32]
	SimpleLongScore            = Simple[Int64]
	SimpleDecimalScore         = Simple[Decimal]
	HardSoftScore              = HardSoft[Int32]
	HardSoftLongScore          = HardSoft[Int64]
	HardSoftDecimalScore       = HardSoft[Decimal]
	HardMediumSoftScore        = HardMediumSoft[Int32]
	HardMediumSoftLongScore    = HardMediumSoft[Int64]
	HardMediumSoftDecimalScore = HardMediumSoft[Decimal]
	BendableScore              = Bendable[Int32]
	BendableLongScore          = Bendable[Int64]
	BendableDecimalScore       = Bendable[Decimal]
)

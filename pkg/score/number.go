// Package score defines the numeric score shapes accumulated by the
// constraint engine.
//
// A score is a fixed list of levels ordered from most to least significant.
// Hard levels come first; a score is feasible when none of its hard levels is
// negative. Every shape is generic over the number type of its levels, so one
// implementation serves 32-bit integers, 64-bit integers and arbitrary
// precision decimals alike:
//
//	score.HardSoftScore        // HardSoft[Int32]
//	score.HardSoftLongScore    // HardSoft[Int64]
//	score.HardSoftDecimalScore // HardSoft[Decimal]
//
// The engine never touches a shape directly. It goes through a Definition,
// which converts between a score and its flat level vector.
package score

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Number is the arithmetic a score level needs.
type Number[N any] interface {
	Add(N) N
	Sub(N) N
	Mul(N) N
	Neg() N
	Cmp(N) int
	Sign() int
	IsZero() bool
	String() string
}

// Int32 is a 32-bit score level.
type Int32 int32

func (a Int32) Add(b Int32) Int32 { return a + b }
func (a Int32) Sub(b Int32) Int32 { return a - b }
func (a Int32) Mul(b Int32) Int32 { return a * b }
func (a Int32) Neg() Int32        { return -a }
func (a Int32) IsZero() bool      { return a == 0 }
func (a Int32) String() string    { return strconv.FormatInt(int64(a), 10) }

func (a Int32) Cmp(b Int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (a Int32) Sign() int { return a.Cmp(0) }

// Int64 is a 64-bit score level.
type Int64 int64

func (a Int64) Add(b Int64) Int64 { return a + b }
func (a Int64) Sub(b Int64) Int64 { return a - b }
func (a Int64) Mul(b Int64) Int64 { return a * b }
func (a Int64) Neg() Int64        { return -a }
func (a Int64) IsZero() bool      { return a == 0 }
func (a Int64) String() string    { return strconv.FormatInt(int64(a), 10) }

func (a Int64) Cmp(b Int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (a Int64) Sign() int { return a.Cmp(0) }

// Decimal is an arbitrary precision score level.
type Decimal = decimal.Decimal

// FromInt64 converts v into the number type N.
func FromInt64[N Number[N]](v int64) N {
	var zero N
	switch any(zero).(type) {
	case Int32:
		return any(Int32(v)).(N)
	case Int64:
		return any(Int64(v)).(N)
	case decimal.Decimal:
		return any(decimal.NewFromInt(v)).(N)
	}
	panic(fmt.Sprintf("score: unsupported number type %T", zero))
}

// One returns the multiplicative identity of N.
func One[N Number[N]]() N { return FromInt64[N](1) }

// ParseNumber parses a single level value.
func ParseNumber[N Number[N]](s string) (N, error) {
	var zero N
	switch any(zero).(type) {
	case Int32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return zero, fmt.Errorf("parse level %q: %w", s, err)
		}
		return any(Int32(v)).(N), nil
	case Int64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return zero, fmt.Errorf("parse level %q: %w", s, err)
		}
		return any(Int64(v)).(N), nil
	case decimal.Decimal:
		v, err := decimal.NewFromString(s)
		if err != nil {
			return zero, fmt.Errorf("parse level %q: %w", s, err)
		}
		return any(v).(N), nil
	}
	return zero, fmt.Errorf("score: unsupported number type %T", zero)
}

package demo

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/gitrdm/gokanscore/pkg/network"
	"github.com/gitrdm/gokanscore/pkg/score"
)

// Queen stands in a fixed column; its row is the planning variable.
type Queen struct {
	Column int
	Row    int
}

func (q *Queen) String() string { return fmt.Sprintf("Q%d@%d", q.Column, q.Row) }

// NQueens places one queen per column of an N×N board so that no two
// queens share a row or a diagonal.
type NQueens struct {
	N      int
	Queens []*Queen
}

// NewNQueens puts every queen on a random row.
func NewNQueens(n int, rng *rand.Rand) *NQueens {
	p := &NQueens{N: n, Queens: make([]*Queen, n)}
	for col := range p.Queens {
		p.Queens[col] = &Queen{Column: col, Row: rng.IntN(n)}
	}
	return p
}

// Builder penalizes every attacking pair once. The score is the negated
// number of attacking pairs.
func (p *NQueens) Builder() *network.Builder[score.SimpleScore, score.Int32] {
	b := network.NewBuilder(score.NewSimpleDefinition[score.Int32]())
	queens := network.ForEach[*Queen](b)
	column := network.Uni(func(q *Queen) int { return q.Column })
	row := network.Uni(func(q *Queen) int { return q.Row })
	ascending := network.Uni(func(q *Queen) int { return q.Row - q.Column })
	descending := network.Uni(func(q *Queen) int { return q.Row + q.Column })
	one := score.SimpleScore{Score: 1}

	queens.Join(queens, network.Equal(row, row), network.LessThan(column, column)).
		Penalize("row conflict", one).InPackage("nqueens")
	queens.Join(queens, network.Equal(ascending, ascending), network.LessThan(column, column)).
		Penalize("ascending diagonal conflict", one).InPackage("nqueens")
	queens.Join(queens, network.Equal(descending, descending), network.LessThan(column, column)).
		Penalize("descending diagonal conflict", one).InPackage("nqueens")
	return b
}

func (p *NQueens) Facts() []any {
	facts := make([]any, len(p.Queens))
	for i, q := range p.Queens {
		facts[i] = q
	}
	return facts
}

// RandomMove moves a random queen to another row of its column.
func (p *NQueens) RandomMove(rng *rand.Rand) (any, func()) {
	q := p.Queens[rng.IntN(len(p.Queens))]
	old := q.Row
	if p.N > 1 {
		q.Row = (old + 1 + rng.IntN(p.N-1)) % p.N
	}
	return q, func() { q.Row = old }
}

// Attacks counts the attacking pairs by comparing every pair of queens.
func (p *NQueens) Attacks() int {
	n := 0
	for i, a := range p.Queens {
		for _, b := range p.Queens[i+1:] {
			if a.Row == b.Row {
				n++
			}
			if a.Row-a.Column == b.Row-b.Column {
				n++
			}
			if a.Row+a.Column == b.Row+b.Column {
				n++
			}
		}
	}
	return n
}

// String draws the board, one line per row.
func (p *NQueens) String() string {
	var sb strings.Builder
	for row := 0; row < p.N; row++ {
		for col, q := range p.Queens {
			if col > 0 {
				sb.WriteByte(' ')
			}
			if q.Row == row {
				sb.WriteByte('Q')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

package inliner

import (
	"fmt"
	"strings"

	"github.com/gitrdm/gokanscore/internal/elist"
)

// ConstraintMatch is one live score contribution of a constraint.
type ConstraintMatch[S any] struct {
	Ref           ConstraintRef
	Justification any
	Indicted      []any
	Score         S

	totalEntry        elist.Entry
	indictmentEntries []elist.Entry
}

func (m *ConstraintMatch[S]) String() string {
	return fmt.Sprintf("%s/%v=%v", m.Ref, m.Justification, m.Score)
}

// DefaultJustification is recorded when a constraint has no custom
// justification mapping.
type DefaultJustification[S any] struct {
	Facts  []any
	Impact S
}

func (j DefaultJustification[S]) String() string {
	parts := make([]string, len(j.Facts))
	for i, f := range j.Facts {
		parts[i] = fmt.Sprint(f)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ConstraintMatchTotal aggregates the live matches of one constraint.
type ConstraintMatchTotal[S any] struct {
	Ref    ConstraintRef
	Weight S

	score   S
	matches *elist.List[*ConstraintMatch[S]]
}

// Score is the sum of every live match score.
func (t *ConstraintMatchTotal[S]) Score() S { return t.score }

// Len returns the number of live matches.
func (t *ConstraintMatchTotal[S]) Len() int { return t.matches.Len() }

// Matches returns the live matches in insertion order.
func (t *ConstraintMatchTotal[S]) Matches() []*ConstraintMatch[S] { return t.matches.Values() }

// Indictment aggregates the live matches blaming one object.
type Indictment[S any] struct {
	Object any

	score   S
	matches *elist.List[*ConstraintMatch[S]]
}

func (ind *Indictment[S]) Score() S                       { return ind.score }
func (ind *Indictment[S]) Len() int                       { return ind.matches.Len() }
func (ind *Indictment[S]) Matches() []*ConstraintMatch[S] { return ind.matches.Values() }

// Constraints returns the distinct constraints currently indicting the
// object.
func (ind *Indictment[S]) Constraints() []ConstraintRef {
	var refs []ConstraintRef
	seen := make(map[ConstraintRef]bool)
	ind.matches.ForEach(func(_ elist.Entry, m *ConstraintMatch[S]) {
		if !seen[m.Ref] {
			seen[m.Ref] = true
			refs = append(refs, m.Ref)
		}
	})
	return refs
}

package inliner

import (
	"fmt"
	"sort"
	"strings"
)

// Summary renders the current score with its heaviest constraints and
// indicted objects. At most limit matches are listed per constraint and per
// object; limit <= 0 lists everything.
func (in *Inliner[S, N]) Summary(limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Explanation of score (%s):\n", in.ExtractScore())
	if !in.matchEnabled {
		sb.WriteString("    Constraint matches are not tracked.\n")
		return sb.String()
	}

	totals := in.ConstraintMatchTotals()
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].score.Compare(totals[j].score) < 0
	})
	sb.WriteString("    Constraint matches:\n")
	for _, t := range totals {
		fmt.Fprintf(&sb, "        %s: constraint (%s) has %d matches:\n", t.score, t.Ref, t.Len())
		writeMatches(&sb, t.Matches(), limit, func(m *ConstraintMatch[S]) string {
			return fmt.Sprintf("%s: justified with (%v)", m.Score, m.Justification)
		})
	}

	sb.WriteString("    Indictments:\n")
	for _, ind := range in.Indictments() {
		fmt.Fprintf(&sb, "        %s: indicted object (%v) has %d matches:\n", ind.score, ind.Object, ind.Len())
		writeMatches(&sb, ind.Matches(), limit, func(m *ConstraintMatch[S]) string {
			return fmt.Sprintf("%s: constraint (%s)", m.Score, m.Ref)
		})
	}
	return sb.String()
}

func writeMatches[S any](sb *strings.Builder, matches []*ConstraintMatch[S], limit int, line func(*ConstraintMatch[S]) string) {
	for i, m := range matches {
		if limit > 0 && i == limit {
			sb.WriteString("            ...\n")
			return
		}
		sb.WriteString("            ")
		sb.WriteString(line(m))
		sb.WriteByte('\n')
	}
}

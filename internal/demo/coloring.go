package demo

import (
	"fmt"
	"math/rand/v2"

	"github.com/gitrdm/gokanscore/pkg/network"
	"github.com/gitrdm/gokanscore/pkg/score"
)

// Colors is the palette of the colouring problem.
var Colors = []string{"red", "green", "blue", "yellow"}

// Vertex is a graph node; its color is the planning variable.
type Vertex struct {
	ID    int
	Color int
}

func (v *Vertex) String() string { return fmt.Sprintf("v%d:%s", v.ID, Colors[v.Color]) }

// Edge joins two vertices, From < To.
type Edge struct {
	From int
	To   int
}

// Preference asks for a vertex to get a color.
type Preference struct {
	Vertex int
	Color  int
}

// Coloring colours a graph so that no edge joins two vertices of the same
// color. Soft goals are to use few colors and to honour preferences.
type Coloring struct {
	Vertices    []*Vertex
	Edges       []*Edge
	Preferences []*Preference
}

// NewColoring builds a ring of n vertices with about n extra random chords,
// colours every vertex at random and prefers a color for every fifth one.
func NewColoring(n int, rng *rand.Rand) *Coloring {
	p := &Coloring{Vertices: make([]*Vertex, n)}
	for i := range p.Vertices {
		p.Vertices[i] = &Vertex{ID: i, Color: rng.IntN(len(Colors))}
	}
	seen := make(map[Edge]bool)
	addEdge := func(a, b int) {
		if a == b {
			return
		}
		e := Edge{From: min(a, b), To: max(a, b)}
		if seen[e] {
			return
		}
		seen[e] = true
		p.Edges = append(p.Edges, &e)
	}
	for i := 0; i < n; i++ {
		addEdge(i, (i+1)%n)
	}
	for i := 0; i < n; i++ {
		addEdge(rng.IntN(n), rng.IntN(n))
	}
	for i := 0; i < n; i += 5 {
		p.Preferences = append(p.Preferences, &Preference{Vertex: i, Color: rng.IntN(len(Colors))})
	}
	return p
}

// Builder declares a hard conflict per monochrome edge, a soft penalty per
// color in use and a soft penalty per ignored preference.
func (p *Coloring) Builder() *network.Builder[score.HardSoftScore, score.Int32] {
	b := network.NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	vertices := network.ForEach[*Vertex](b)
	edges := network.ForEach[*Edge](b)
	prefs := network.ForEach[*Preference](b)
	id := network.Uni(func(v *Vertex) int { return v.ID })
	color := network.Uni(func(v *Vertex) int { return v.Color })

	edges.
		Join(vertices, network.Equal(network.Uni(func(e *Edge) int { return e.From }), id)).
		Join(vertices,
			network.Equal(network.Uni(func(e *Edge) int { return e.To }), id),
			network.Equal(network.Bi(func(_ *Edge, v *Vertex) int { return v.Color }), color)).
		Penalize("conflict", score.HardSoftScore{Hard: 1}).
		InPackage("coloring").
		Indict(func(facts []any) []any { return facts[1:] })

	vertices.GroupBy(func(t *network.Tuple) any { return color(t) }, network.Count()).
		Penalize("color in use", score.HardSoftScore{Soft: 1}).
		InPackage("coloring").
		Indict(func(facts []any) []any { return []any{Colors[facts[0].(int)]} })

	vertices.
		IfExists(prefs,
			network.Equal(id, network.Uni(func(pr *Preference) int { return pr.Vertex })),
			network.Filtering(func(v, pr *network.Tuple) bool {
				return network.FactAs[*Vertex](v, 0).Color != network.FactAs[*Preference](pr, 0).Color
			})).
		Penalize("ignored preference", score.HardSoftScore{Soft: 1}).
		InPackage("coloring")
	return b
}

func (p *Coloring) Facts() []any {
	facts := make([]any, 0, len(p.Vertices)+len(p.Edges)+len(p.Preferences))
	for _, v := range p.Vertices {
		facts = append(facts, v)
	}
	for _, e := range p.Edges {
		facts = append(facts, e)
	}
	for _, pr := range p.Preferences {
		facts = append(facts, pr)
	}
	return facts
}

// RandomMove repaints a random vertex.
func (p *Coloring) RandomMove(rng *rand.Rand) (any, func()) {
	v := p.Vertices[rng.IntN(len(p.Vertices))]
	old := v.Color
	v.Color = (old + 1 + rng.IntN(len(Colors)-1)) % len(Colors)
	return v, func() { v.Color = old }
}

// Conflicts counts the monochrome edges.
func (p *Coloring) Conflicts() int {
	n := 0
	for _, e := range p.Edges {
		if p.Vertices[e.From].Color == p.Vertices[e.To].Color {
			n++
		}
	}
	return n
}

// ColorsInUse counts the distinct colors of the vertices.
func (p *Coloring) ColorsInUse() int {
	used := make(map[int]bool)
	for _, v := range p.Vertices {
		used[v.Color] = true
	}
	return len(used)
}

// IgnoredPreferences counts the vertices painted against their preference.
func (p *Coloring) IgnoredPreferences() int {
	n := 0
	for _, pr := range p.Preferences {
		if p.Vertices[pr.Vertex].Color != pr.Color {
			n++
		}
	}
	return n
}

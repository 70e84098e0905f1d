package score

import (
	"errors"
	"fmt"
	"strings"
)

// ErrParse is wrapped by every score parsing failure.
var ErrParse = errors.New("score: cannot parse")

// Definition describes one score shape over one number type. It is the only
// way the engine reads or builds scores: a score is flattened into a level
// vector of LevelsSize numbers, hard levels first.
type Definition[S Score[S], N Number[N]] interface {
	// LevelsSize is the total number of levels.
	LevelsSize() int
	// HardLevelsSize is the number of leading hard levels.
	HardLevelsSize() int
	// LevelLabels names each level, e.g. "hard" and "soft".
	LevelLabels() []string
	Zero() S
	// ToLevels flattens s. It fails when s does not have this layout.
	ToLevels(s S) ([]N, error)
	// FromLevels builds a score from a vector of LevelsSize numbers.
	FromLevels(levels []N) S
	Parse(text string) (S, error)
	String() string
}

type simpleDefinition[N Number[N]] struct{}

// NewSimpleDefinition describes Simple scores over N.
func NewSimpleDefinition[N Number[N]]() Definition[Simple[N], N] {
	return simpleDefinition[N]{}
}

func (simpleDefinition[N]) LevelsSize() int       { return 1 }
func (simpleDefinition[N]) HardLevelsSize() int   { return 0 }
func (simpleDefinition[N]) LevelLabels() []string { return []string{"score"} }
func (simpleDefinition[N]) Zero() Simple[N]       { return Simple[N]{} }
func (simpleDefinition[N]) String() string        { return "simple" }

func (simpleDefinition[N]) ToLevels(s Simple[N]) ([]N, error) {
	return []N{s.Score}, nil
}

func (simpleDefinition[N]) FromLevels(levels []N) Simple[N] {
	return Simple[N]{levels[0]}
}

func (simpleDefinition[N]) Parse(text string) (Simple[N], error) {
	v, err := ParseNumber[N](strings.TrimSpace(text))
	if err != nil {
		return Simple[N]{}, fmt.Errorf("%w simple score %q: %w", ErrParse, text, err)
	}
	return Simple[N]{v}, nil
}

type hardSoftDefinition[N Number[N]] struct{}

// NewHardSoftDefinition describes HardSoft scores over N.
func NewHardSoftDefinition[N Number[N]]() Definition[HardSoft[N], N] {
	return hardSoftDefinition[N]{}
}

func (hardSoftDefinition[N]) LevelsSize() int       { return 2 }
func (hardSoftDefinition[N]) HardLevelsSize() int   { return 1 }
func (hardSoftDefinition[N]) LevelLabels() []string { return []string{"hard", "soft"} }
func (hardSoftDefinition[N]) Zero() HardSoft[N]     { return HardSoft[N]{} }
func (hardSoftDefinition[N]) String() string        { return "hardSoft" }

func (hardSoftDefinition[N]) ToLevels(s HardSoft[N]) ([]N, error) {
	return []N{s.Hard, s.Soft}, nil
}

func (hardSoftDefinition[N]) FromLevels(levels []N) HardSoft[N] {
	return HardSoft[N]{levels[0], levels[1]}
}

func (hardSoftDefinition[N]) Parse(text string) (HardSoft[N], error) {
	levels, err := parseLabelled[N](text, "hard", "soft")
	if err != nil {
		return HardSoft[N]{}, err
	}
	return HardSoft[N]{levels[0], levels[1]}, nil
}

type hardMediumSoftDefinition[N Number[N]] struct{}

// NewHardMediumSoftDefinition describes HardMediumSoft scores over N.
func NewHardMediumSoftDefinition[N Number[N]]() Definition[HardMediumSoft[N], N] {
	return hardMediumSoftDefinition[N]{}
}

func (hardMediumSoftDefinition[N]) LevelsSize() int     { return 3 }
func (hardMediumSoftDefinition[N]) HardLevelsSize() int { return 1 }
func (hardMediumSoftDefinition[N]) String() string      { return "hardMediumSoft" }

func (hardMediumSoftDefinition[N]) LevelLabels() []string {
	return []string{"hard", "medium", "soft"}
}

func (hardMediumSoftDefinition[N]) Zero() HardMediumSoft[N] { return HardMediumSoft[N]{} }

func (hardMediumSoftDefinition[N]) ToLevels(s HardMediumSoft[N]) ([]N, error) {
	return []N{s.Hard, s.Medium, s.Soft}, nil
}

func (hardMediumSoftDefinition[N]) FromLevels(levels []N) HardMediumSoft[N] {
	return HardMediumSoft[N]{levels[0], levels[1], levels[2]}
}

func (hardMediumSoftDefinition[N]) Parse(text string) (HardMediumSoft[N], error) {
	levels, err := parseLabelled[N](text, "hard", "medium", "soft")
	if err != nil {
		return HardMediumSoft[N]{}, err
	}
	return HardMediumSoft[N]{levels[0], levels[1], levels[2]}, nil
}

// parseLabelled parses "1hard/-2soft" style text with the given suffixes.
func parseLabelled[N Number[N]](text string, labels ...string) ([]N, error) {
	parts := strings.Split(strings.TrimSpace(text), "/")
	if len(parts) != len(labels) {
		return nil, fmt.Errorf("%w %q: want %d levels (%s), got %d",
			ErrParse, text, len(labels), strings.Join(labels, "/"), len(parts))
	}
	levels := make([]N, len(labels))
	for i, label := range labels {
		raw, ok := strings.CutSuffix(parts[i], label)
		if !ok {
			return nil, fmt.Errorf("%w %q: level %d must end with %q", ErrParse, text, i, label)
		}
		v, err := ParseNumber[N](raw)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrParse, text, err)
		}
		levels[i] = v
	}
	return levels, nil
}

type bendableDefinition[N Number[N]] struct {
	hard, soft int
}

// NewBendableDefinition describes Bendable scores with a fixed number of hard
// and soft levels. At least one level is required.
func NewBendableDefinition[N Number[N]](hardLevels, softLevels int) (Definition[Bendable[N], N], error) {
	if hardLevels < 0 || softLevels < 0 || hardLevels+softLevels == 0 {
		return nil, fmt.Errorf("score: invalid bendable layout (%d hard, %d soft)", hardLevels, softLevels)
	}
	return bendableDefinition[N]{hard: hardLevels, soft: softLevels}, nil
}

func (d bendableDefinition[N]) LevelsSize() int     { return d.hard + d.soft }
func (d bendableDefinition[N]) HardLevelsSize() int { return d.hard }
func (d bendableDefinition[N]) Zero() Bendable[N]   { return NewBendable[N](d.hard, d.soft) }

func (d bendableDefinition[N]) String() string {
	return fmt.Sprintf("bendable(%d/%d)", d.hard, d.soft)
}

func (d bendableDefinition[N]) LevelLabels() []string {
	labels := make([]string, 0, d.hard+d.soft)
	for i := 0; i < d.hard; i++ {
		labels = append(labels, fmt.Sprintf("hard%d", i))
	}
	for i := 0; i < d.soft; i++ {
		labels = append(labels, fmt.Sprintf("soft%d", i))
	}
	return labels
}

func (d bendableDefinition[N]) ToLevels(s Bendable[N]) ([]N, error) {
	if err := d.Zero().Compatible(s); err != nil {
		return nil, err
	}
	levels := make([]N, 0, d.hard+d.soft)
	levels = append(levels, s.Hard...)
	return append(levels, s.Soft...), nil
}

func (d bendableDefinition[N]) FromLevels(levels []N) Bendable[N] {
	out := NewBendable[N](d.hard, d.soft)
	copy(out.Hard, levels[:d.hard])
	copy(out.Soft, levels[d.hard:d.hard+d.soft])
	return out
}

func (d bendableDefinition[N]) Parse(text string) (Bendable[N], error) {
	rest := strings.TrimSpace(text)
	hard, rest, err := parseBracketed[N](rest, "hard")
	if err != nil {
		return Bendable[N]{}, fmt.Errorf("%w %q: %w", ErrParse, text, err)
	}
	rest, ok := strings.CutPrefix(rest, "/")
	if !ok {
		return Bendable[N]{}, fmt.Errorf("%w %q: missing soft part", ErrParse, text)
	}
	soft, rest, err := parseBracketed[N](rest, "soft")
	if err != nil {
		return Bendable[N]{}, fmt.Errorf("%w %q: %w", ErrParse, text, err)
	}
	if rest != "" {
		return Bendable[N]{}, fmt.Errorf("%w %q: trailing %q", ErrParse, text, rest)
	}
	s := Bendable[N]{Hard: hard, Soft: soft}
	if err := d.Zero().Compatible(s); err != nil {
		return Bendable[N]{}, err
	}
	return s, nil
}

// parseBracketed consumes "[a/b/c]label" from the front of text.
func parseBracketed[N Number[N]](text, label string) ([]N, string, error) {
	if !strings.HasPrefix(text, "[") {
		return nil, "", fmt.Errorf("%s part must start with '['", label)
	}
	end := strings.Index(text, "]")
	if end < 0 {
		return nil, "", fmt.Errorf("%s part is missing ']'", label)
	}
	inner := text[1:end]
	rest, ok := strings.CutPrefix(text[end+1:], label)
	if !ok {
		return nil, "", fmt.Errorf("bracket must be followed by %q", label)
	}
	levels := []N{}
	if inner != "" {
		for _, raw := range strings.Split(inner, "/") {
			v, err := ParseNumber[N](raw)
			if err != nil {
				return nil, "", err
			}
			levels = append(levels, v)
		}
	}
	return levels, rest, nil
}

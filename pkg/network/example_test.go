package network_test

import (
	"fmt"

	"github.com/gitrdm/gokanscore/pkg/network"
	"github.com/gitrdm/gokanscore/pkg/score"
)

type lesson struct {
	id   int
	room string
	slot int
}

func ExampleNewSession() {
	b := network.NewBuilder(score.NewHardSoftDefinition[score.Int32]())
	lessons := network.ForEach[*lesson](b)
	room := network.Uni(func(l *lesson) string { return l.room })
	slot := network.Uni(func(l *lesson) int { return l.slot })
	id := network.Uni(func(l *lesson) int { return l.id })
	lessons.Join(lessons, network.Equal(room, room), network.Equal(slot, slot), network.LessThan(id, id)).
		Penalize("room conflict", score.HardSoftScore{Hard: 1})
	lessons.Filter(network.Uni(func(l *lesson) bool { return l.slot == 0 })).
		Penalize("early lesson", score.HardSoftScore{Soft: 1})

	s, err := network.NewSession(b)
	if err != nil {
		fmt.Println(err)
		return
	}
	math := &lesson{id: 1, room: "A", slot: 0}
	physics := &lesson{id: 2, room: "A", slot: 0}
	_ = s.Insert(math)
	_ = s.Insert(physics)
	sc, _ := s.CalculateScore()
	fmt.Println(sc)

	physics.slot = 1
	_ = s.Update(physics)
	sc, _ = s.CalculateScore()
	fmt.Println(sc)
	// Output:
	// -1hard/-2soft
	// 0hard/-1soft
}

func ExampleSession_Summary() {
	b := network.NewBuilder(score.NewSimpleDefinition[score.Int64]())
	network.ForEach[string](b).
		Reward("letters", score.SimpleLongScore{Score: 1}).
		Weigh(func(t *network.Tuple) score.Int64 { return score.Int64(len(network.FactAs[string](t, 0))) })

	s, err := network.NewSession(b, network.WithConstraintMatch(true))
	if err != nil {
		fmt.Println(err)
		return
	}
	_ = s.Insert("go")
	_ = s.Insert("rete")
	totals, _ := s.ConstraintMatchTotals()
	for _, t := range totals {
		fmt.Println(t.Ref, t.Score(), t.Len())
	}
	// Output:
	// letters 6 2
}

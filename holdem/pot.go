package holdem

import "sort"

// Contribution is the total a player put into the pot during one hand.
type Contribution struct {
	Player string
	Amount int64
	Folded bool
}

// Pot is a slice of the hand's chips and the players who can win it,
// listed in seat order.
type Pot struct {
	Amount   int64
	Eligible []string
}

// BuildPots splits contributions into a main pot and side pots by
// contribution level. Adjacent levels with the same contenders are merged, and
// a level nobody live reached is folded into the pot below it.
func BuildPots(contribs []Contribution) []Pot {
	levels := make([]int64, 0, len(contribs))
	seen := make(map[int64]bool, len(contribs))
	for _, c := range contribs {
		if c.Amount > 0 && !seen[c.Amount] {
			seen[c.Amount] = true
			levels = append(levels, c.Amount)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	pots := make([]Pot, 0, len(levels))
	prev := int64(0)
	for _, level := range levels {
		slice := Pot{}
		for _, c := range contribs {
			if c.Amount < level {
				continue
			}
			slice.Amount += level - prev
			if !c.Folded {
				slice.Eligible = append(slice.Eligible, c.Player)
			}
		}
		prev = level

		if n := len(pots); n > 0 {
			last := &pots[n-1]
			if len(slice.Eligible) == 0 || sameContenders(last.Eligible, slice.Eligible) {
				last.Amount += slice.Amount
				continue
			}
		}
		pots = append(pots, slice)
	}
	return pots
}

// PotsTotal sums pot amounts.
func PotsTotal(pots []Pot) int64 {
	var total int64
	for _, p := range pots {
		total += p.Amount
	}
	return total
}

func sameContenders(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

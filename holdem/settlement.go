package holdem

// PotAward is the outcome of one pot. Share is what each winner receives;
// Remainder is what an uneven split leaves behind and nobody receives.
type PotAward struct {
	Amount    int64
	Share     int64
	Remainder int64
	Winners   []string
	HandRank  string
}

// AwardPots decides every pot independently. hands holds the evaluated hand of
// each live contender; a nil map means the hand was won without a showdown.
func AwardPots(pots []Pot, hands map[string]HandValue) []PotAward {
	awards := make([]PotAward, 0, len(pots))
	for _, pot := range pots {
		award := PotAward{Amount: pot.Amount, HandRank: DefaultRank}
		if len(pot.Eligible) == 0 {
			award.Remainder = pot.Amount
			awards = append(awards, award)
			continue
		}

		if hands == nil || len(pot.Eligible) == 1 {
			award.Winners = []string{pot.Eligible[0]}
			if hv, ok := hands[pot.Eligible[0]]; ok {
				award.HandRank = hv.Description
			}
		} else {
			var best HandValue
			for _, name := range pot.Eligible {
				hv, ok := hands[name]
				if !ok {
					continue
				}
				switch {
				case len(award.Winners) == 0 || hv.Score > best.Score:
					best = hv
					award.Winners = []string{name}
				case hv.Score == best.Score:
					award.Winners = append(award.Winners, name)
				}
			}
			award.HandRank = best.Description
		}

		if n := int64(len(award.Winners)); n > 0 {
			award.Share = pot.Amount / n
			award.Remainder = pot.Amount - award.Share*n
		} else {
			award.Remainder = pot.Amount
		}
		awards = append(awards, award)
	}
	return awards
}

// MustShow lists the winners of every contested pot, without duplicates, in the
// order they first appear.
func MustShow(pots []Pot, awards []PotAward) []string {
	seen := make(map[string]bool)
	var out []string
	for i, a := range awards {
		if i >= len(pots) || len(pots[i].Eligible) < 2 {
			continue
		}
		for _, w := range a.Winners {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}

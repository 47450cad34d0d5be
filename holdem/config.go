package holdem

import "fmt"

type Config struct {
	MaxPlayers int

	SmallBlind int64
	BigBlind   int64

	// RNG seed (0 => time-based)
	Seed int64
}

func (c Config) Validate() error {
	if c.MaxPlayers < 2 {
		return fmt.Errorf("MaxPlayers must be >= 2")
	}
	if c.SmallBlind <= 0 || c.BigBlind <= 0 || c.SmallBlind > c.BigBlind {
		return fmt.Errorf("invalid blinds: sb=%d bb=%d", c.SmallBlind, c.BigBlind)
	}
	return nil
}

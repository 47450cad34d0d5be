// Package clock keeps the countdowns a session runs: one kick countdown for
// the seat to act and one countdown between hands. It holds no goroutines; the
// owning session advances it from its own loop, so an expiry can never race
// the state it applies to.
package clock

import (
	"math"
	"time"
)

type Kind int

const (
	Turn Kind = iota
	Round
)

func (k Kind) String() string {
	switch k {
	case Turn:
		return "turn"
	case Round:
		return "round"
	}
	return "unknown"
}

// Timer is one armed countdown. Gen is unique per arming; a timer whose Gen
// no longer matches the clock's current one for its kind is stale.
type Timer struct {
	Kind     Kind
	Gen      uint64
	Owner    string
	Deadline time.Time

	lastSeconds int
}

// Tick reports the whole seconds left on a timer whenever that number drops.
type Tick struct {
	Kind    Kind
	Gen     uint64
	Owner   string
	Seconds int
}

type Clock struct {
	gen    uint64
	timers map[Kind]*Timer
}

func New() *Clock {
	return &Clock{timers: make(map[Kind]*Timer, 2)}
}

// Arm replaces any timer of the same kind and returns it together with the
// opening tick carrying the full duration.
func (c *Clock) Arm(kind Kind, owner string, d time.Duration, now time.Time) (Timer, Tick) {
	c.gen++
	secs := wholeSeconds(d)
	t := &Timer{
		Kind:        kind,
		Gen:         c.gen,
		Owner:       owner,
		Deadline:    now.Add(d),
		lastSeconds: secs,
	}
	c.timers[kind] = t
	return *t, Tick{Kind: kind, Gen: t.Gen, Owner: owner, Seconds: secs}
}

func (c *Clock) Cancel(kind Kind) {
	delete(c.timers, kind)
}

func (c *Clock) CancelAll() {
	for k := range c.timers {
		delete(c.timers, k)
	}
}

// Armed returns the live timer of a kind.
func (c *Clock) Armed(kind Kind) (Timer, bool) {
	t, ok := c.timers[kind]
	if !ok {
		return Timer{}, false
	}
	return *t, true
}

// Current reports whether t is still the live timer of its kind.
func (c *Clock) Current(t Timer) bool {
	live, ok := c.timers[t.Kind]
	return ok && live.Gen == t.Gen
}

// Advance moves every armed timer to now. It returns countdown ticks for
// timers whose whole-second remainder dropped and disarms the expired ones.
func (c *Clock) Advance(now time.Time) (ticks []Tick, expired []Timer) {
	for _, kind := range []Kind{Turn, Round} {
		t, ok := c.timers[kind]
		if !ok {
			continue
		}
		left := t.Deadline.Sub(now)
		if left <= 0 {
			delete(c.timers, kind)
			expired = append(expired, *t)
			continue
		}
		if secs := wholeSeconds(left); secs < t.lastSeconds {
			t.lastSeconds = secs
			ticks = append(ticks, Tick{Kind: kind, Gen: t.Gen, Owner: t.Owner, Seconds: secs})
		}
	}
	return ticks, expired
}

func wholeSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

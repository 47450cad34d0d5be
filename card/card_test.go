package card

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCodes(t *testing.T) {
	c, err := Parse("10h")
	require.NoError(t, err)
	require.Equal(t, Heart, c.Suit())
	require.Equal(t, 10, c.Rank())
	require.Equal(t, "Th", c.String())

	_, err = Parse("Xs")
	require.Error(t, err)
	_, err = Parse("Az")
	require.Error(t, err)
}

func TestDeckHasEveryCardOnce(t *testing.T) {
	d := NewDeck(rand.New(rand.NewSource(7)))
	require.Equal(t, 52, d.Count())
	seen := map[Card]bool{}
	for _, c := range d {
		require.True(t, c.Valid())
		require.False(t, seen[c], "duplicate %s", c)
		seen[c] = true
	}
	hole, ok := d.Draw(2)
	require.True(t, ok)
	require.Len(t, hole, 2)
	require.Equal(t, 50, d.Count())
	_, ok = d.Draw(51)
	require.False(t, ok)
}

func TestCardJSONUsesCode(t *testing.T) {
	raw, err := json.Marshal([]Card{MustParse("As"), MustParse("Kd")})
	require.NoError(t, err)
	require.JSONEq(t, `["As","Kd"]`, string(raw))

	var back []Card
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, MustParse("Kd"), back[1])
}

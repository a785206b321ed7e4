// internal/game/combo_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCards(t *testing.T, codes ...string) []Card {
	t.Helper()
	cards, err := ParseCards(codes)
	require.NoError(t, err)
	return cards
}

func mustClassify(t *testing.T, codes ...string) Combination {
	t.Helper()
	combo, err := Classify(mustCards(t, codes...))
	require.NoError(t, err, "expected %v to classify", codes)
	return combo
}

func TestParseCardRoundTrip(t *testing.T) {
	for _, c := range NewDeck() {
		parsed, err := ParseCard(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseCard("11S")
	assert.Error(t, err)
	_, err = ParseCard("3X")
	assert.Error(t, err)
}

func TestClassifyShapes(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
		want  ComboType
	}{
		{"single", []string{"7H"}, ComboSingle},
		{"single joker", []string{"RJ"}, ComboSingle},
		{"pair", []string{"9C", "9D"}, ComboPair},
		{"triple", []string{"KC", "KD", "KH"}, ComboTriple},
		{"run", []string{"3S", "4C", "5H"}, ComboRun},
		{"long run to ace", []string{"10S", "JC", "QD", "KH", "AS"}, ComboRun},
		{"bomb", []string{"5S", "5C", "5D", "5H"}, ComboBomb},
		{"joker bomb", []string{"BJ", "RJ"}, ComboJokerBomb},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			combo := mustClassify(t, tc.codes...)
			assert.Equal(t, tc.want, combo.Type)
			assert.Equal(t, len(tc.codes), combo.Length)
		})
	}
}

func TestClassifyRejects(t *testing.T) {
	invalid := [][]string{
		{"3S", "4S"},             // two cards, not a pair
		{"3S", "3C", "4D"},       // three cards, neither triple nor run
		{"AS", "2S", "3S"},       // run may not wrap through 2
		{"KS", "AS", "2S"},       // 2 never runs
		{"BJ", "3S"},             // joker mixed with a card
		{"BJ", "BJ"},             // duplicate joker is not the joker bomb
		{"3S", "3C", "3D", "4H"}, // broken quad
	}
	for _, codes := range invalid {
		cards, err := ParseCards(codes)
		require.NoError(t, err)
		_, err = Classify(cards)
		assert.Error(t, err, "expected %v to be invalid", codes)
	}

	_, err := Classify(nil)
	require.Error(t, err)
}

func TestBeatsWithinType(t *testing.T) {
	low := mustClassify(t, "4S")
	high := mustClassify(t, "4H")
	assert.True(t, Beats(high, low), "suit breaks single ties")
	assert.False(t, Beats(low, high))
	assert.False(t, Beats(low, low), "beats is irreflexive")

	pairNines := mustClassify(t, "9C", "9D")
	pairJacks := mustClassify(t, "JC", "JD")
	assert.True(t, Beats(pairJacks, pairNines))
	assert.False(t, Beats(pairNines, pairJacks))

	runLow := mustClassify(t, "3S", "4C", "5H")
	runHigh := mustClassify(t, "4S", "5C", "6H")
	runLong := mustClassify(t, "3S", "4C", "5H", "6D")
	assert.True(t, Beats(runHigh, runLow))
	assert.False(t, Beats(runLong, runLow), "runs of different length never compare")
}

func TestBeatsAcrossTypes(t *testing.T) {
	single := mustClassify(t, "2H")
	pair := mustClassify(t, "AC", "AD")
	bomb := mustClassify(t, "5S", "5C", "5D", "5H")
	biggerBomb := mustClassify(t, "KS", "KC", "KD", "KH")
	jokerBomb := mustClassify(t, "BJ", "RJ")

	assert.False(t, Beats(single, pair))
	assert.True(t, Beats(bomb, single))
	assert.True(t, Beats(bomb, pair))
	assert.False(t, Beats(single, bomb))
	assert.True(t, Beats(biggerBomb, bomb))
	assert.False(t, Beats(bomb, biggerBomb))
	assert.True(t, Beats(jokerBomb, biggerBomb))
	assert.False(t, Beats(biggerBomb, jokerBomb))
	assert.False(t, Beats(jokerBomb, jokerBomb))
}

// Every subset of up to three cards from a small pool classifies to exactly
// one result or an error, never a panic.
func TestClassifyTotalOverSmallHands(t *testing.T) {
	pool := NewDeck()[:20]
	pool = append(pool, Card{Rank: RankBlackJoker}, Card{Rank: RankRedJoker})
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			for k := j + 1; k < len(pool); k++ {
				sel := []Card{pool[i], pool[j], pool[k]}
				combo, err := Classify(sel)
				if err == nil {
					assert.NotEmpty(t, combo.Type)
					assert.Len(t, combo.Cards, 3)
				}
			}
		}
	}
}

// Restricted to one type and length, Beats is a strict total order.
func TestBeatsStrictOrderOnSingles(t *testing.T) {
	deck := NewDeck()
	singles := make([]Combination, 0, len(deck))
	for _, c := range deck {
		combo, err := Classify([]Card{c})
		require.NoError(t, err)
		singles = append(singles, combo)
	}
	for i := range singles {
		for j := range singles {
			a, b := singles[i], singles[j]
			if i == j {
				assert.False(t, Beats(a, b))
				continue
			}
			assert.NotEqual(t, Beats(a, b), Beats(b, a),
				"exactly one of %v / %v must win", a.Cards, b.Cards)
		}
	}
}

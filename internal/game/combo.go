// internal/game/combo.go
//
// The combination engine is pure: Classify and Beats never touch game state
// and are deterministic over their inputs.
package game

import (
	"github.com/endritv/murlan/internal/errs"
)

// ComboType enumerates every legal Murlan combination shape.
type ComboType string

const (
	ComboSingle    ComboType = "single"
	ComboPair      ComboType = "pair"
	ComboTriple    ComboType = "triple"
	ComboRun       ComboType = "run"
	ComboBomb      ComboType = "bomb"       // four of a kind
	ComboJokerBomb ComboType = "joker_bomb" // both jokers together
)

// Combination is a classified, comparable play.
type Combination struct {
	Type   ComboType `json:"type"`
	Cards  []Card    `json:"cards"`
	Length int       `json:"length"`
	// Strength totally orders combinations of the same type and length.
	// For singles it folds in the suit tiebreak; everything else compares
	// by rank alone.
	Strength int `json:"strength"`
}

// Classify determines the unique combination a card selection forms, or
// rejects it. Rules:
//
//	single      any one card
//	pair/triple 2 or 3 cards of equal rank (jokers never match each other)
//	run         3+ cards of consecutive ranks, 3 through A only
//	bomb        all four cards of one rank
//	joker bomb  exactly both jokers
func Classify(cards []Card) (Combination, error) {
	if len(cards) == 0 {
		return Combination{}, errs.New(errs.EmptyPlay, "no cards selected")
	}

	sorted := make([]Card, len(cards))
	copy(sorted, cards)
	SortCards(sorted)

	jokers := 0
	for _, c := range sorted {
		if c.IsJoker() {
			jokers++
		}
	}

	switch {
	case len(sorted) == 1:
		return Combination{Type: ComboSingle, Cards: sorted, Length: 1, Strength: sorted[0].Order()}, nil

	case len(sorted) == 2 && jokers == 2:
		if sorted[0].Rank == RankBlackJoker && sorted[1].Rank == RankRedJoker {
			return Combination{Type: ComboJokerBomb, Cards: sorted, Length: 2, Strength: int(RankRedJoker)}, nil
		}
		return Combination{}, errs.New(errs.InvalidCombination, "joker bomb needs both jokers")
	}

	if jokers > 0 {
		// Jokers only play alone or as the pair of jokers.
		return Combination{}, errs.New(errs.InvalidCombination, "jokers combine with nothing")
	}

	if sameRank(sorted) {
		switch len(sorted) {
		case 2:
			return Combination{Type: ComboPair, Cards: sorted, Length: 2, Strength: int(sorted[0].Rank)}, nil
		case 3:
			return Combination{Type: ComboTriple, Cards: sorted, Length: 3, Strength: int(sorted[0].Rank)}, nil
		case 4:
			return Combination{Type: ComboBomb, Cards: sorted, Length: 4, Strength: int(sorted[0].Rank)}, nil
		}
		return Combination{}, errs.New(errs.InvalidCombination, "too many cards of one rank")
	}

	if isRun(sorted) {
		top := sorted[len(sorted)-1].Rank
		return Combination{Type: ComboRun, Cards: sorted, Length: len(sorted), Strength: int(top)}, nil
	}

	return Combination{}, errs.New(errs.InvalidCombination, "cards form no known combination")
}

// Beats reports whether candidate may be played over reference. The two
// bomb types break the usual same-type-same-length requirement: a bomb
// beats any non-bomb, and the joker bomb beats everything.
func Beats(candidate, reference Combination) bool {
	if candidate.Type == ComboJokerBomb {
		return reference.Type != ComboJokerBomb
	}
	if candidate.Type == ComboBomb {
		switch reference.Type {
		case ComboJokerBomb:
			return false
		case ComboBomb:
			return candidate.Strength > reference.Strength
		default:
			return true
		}
	}
	if reference.Type == ComboBomb || reference.Type == ComboJokerBomb {
		return false
	}
	if candidate.Type != reference.Type || candidate.Length != reference.Length {
		return false
	}
	return candidate.Strength > reference.Strength
}

func sameRank(sorted []Card) bool {
	for _, c := range sorted[1:] {
		if c.Rank != sorted[0].Rank {
			return false
		}
	}
	return true
}

// isRun expects sorted input. Runs never contain a 2 and are at least 3
// cards long.
func isRun(sorted []Card) bool {
	if len(sorted) < 3 {
		return false
	}
	if sorted[len(sorted)-1].Rank > RankA {
		return false
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Rank != sorted[i-1].Rank+1 {
			return false
		}
	}
	return true
}

// ContainsCard reports whether cards includes target.
func ContainsCard(cards []Card, target Card) bool {
	for _, c := range cards {
		if c == target {
			return true
		}
	}
	return false
}

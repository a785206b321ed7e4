// internal/game/card.go
package game

import (
	"math/rand"
	"strings"
	"time"

	"github.com/endritv/murlan/internal/errs"
)

// Suit ordering is ascending and only ever breaks ties between singles of
// equal rank. Spades are lowest, so the opening card is always the 3 of
// spades.
type Suit uint8

const (
	SuitSpades Suit = iota
	SuitClubs
	SuitDiamonds
	SuitHearts
)

var suitLetters = [...]string{"S", "C", "D", "H"}

// Rank ordering is the climbing-game order: 3 is lowest, 2 is highest, with
// the two jokers above everything.
type Rank uint8

const (
	Rank3 Rank = iota
	Rank4
	Rank5
	Rank6
	Rank7
	Rank8
	Rank9
	Rank10
	RankJ
	RankQ
	RankK
	RankA
	Rank2
	RankBlackJoker
	RankRedJoker
)

var rankTokens = [...]string{"3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A", "2"}

// Card is a single card in the 54-card Murlan deck. Jokers carry a zero
// Suit that is never consulted.
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

// OpeningCard must be part of the very first play of every game.
var OpeningCard = Card{Rank: Rank3, Suit: SuitSpades}

// IsJoker reports whether the card is one of the two jokers.
func (c Card) IsJoker() bool {
	return c.Rank == RankBlackJoker || c.Rank == RankRedJoker
}

// Order is a total order over all 54 cards: rank first, suit as tiebreak.
func (c Card) Order() int {
	if c.IsJoker() {
		return int(c.Rank)*4 + 3
	}
	return int(c.Rank)*4 + int(c.Suit)
}

// String renders the wire code for the card, e.g. "3S", "10H", "BJ", "RJ".
func (c Card) String() string {
	switch c.Rank {
	case RankBlackJoker:
		return "BJ"
	case RankRedJoker:
		return "RJ"
	}
	return rankTokens[c.Rank] + suitLetters[c.Suit]
}

// ParseCard converts a wire code back into a Card.
func ParseCard(code string) (Card, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case "BJ":
		return Card{Rank: RankBlackJoker}, nil
	case "RJ":
		return Card{Rank: RankRedJoker}, nil
	}
	if len(code) < 2 {
		return Card{}, errs.New(errs.InvalidCard, "malformed card code "+code)
	}
	rankTok, suitTok := code[:len(code)-1], code[len(code)-1:]
	var rank Rank
	found := false
	for i, tok := range rankTokens {
		if tok == rankTok {
			rank = Rank(i)
			found = true
			break
		}
	}
	if !found {
		return Card{}, errs.New(errs.InvalidCard, "unknown rank in "+code)
	}
	for i, s := range suitLetters {
		if s == suitTok {
			return Card{Rank: rank, Suit: Suit(i)}, nil
		}
	}
	return Card{}, errs.New(errs.InvalidCard, "unknown suit in "+code)
}

// ParseCards converts a slice of wire codes; any bad code fails the whole
// request.
func ParseCards(codes []string) ([]Card, error) {
	cards := make([]Card, 0, len(codes))
	for _, code := range codes {
		c, err := ParseCard(code)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// CardCodes renders a hand back into wire codes, sorted low to high.
func CardCodes(cards []Card) []string {
	sorted := make([]Card, len(cards))
	copy(sorted, cards)
	SortCards(sorted)
	codes := make([]string, len(sorted))
	for i, c := range sorted {
		codes[i] = c.String()
	}
	return codes
}

// SortCards orders cards ascending by Order, in place.
func SortCards(cards []Card) {
	for i := 1; i < len(cards); i++ {
		for j := i; j > 0 && cards[j].Order() < cards[j-1].Order(); j-- {
			cards[j], cards[j-1] = cards[j-1], cards[j]
		}
	}
}

// NewDeck returns the 54-card deck in canonical order.
func NewDeck() []Card {
	deck := make([]Card, 0, 54)
	for r := Rank3; r <= Rank2; r++ {
		for s := SuitSpades; s <= SuitHearts; s++ {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	deck = append(deck, Card{Rank: RankBlackJoker}, Card{Rank: RankRedJoker})
	return deck
}

// ShuffleDeck uniformly shuffles a deck with a time-seeded source.
func ShuffleDeck(deck []Card) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
}

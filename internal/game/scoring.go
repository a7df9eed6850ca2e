// internal/game/scoring.go
package game

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ScoreTier awards Points to a correct guess made within Within of round start.
type ScoreTier struct {
	Within time.Duration
	Points int
}

// ScoreTable is an ordered tier list (ascending Within). The final tier acts
// as the floor for anything slower; the thresholds are configuration, not
// hidden constants.
type ScoreTable []ScoreTier

// DefaultGuessTable scores guessers by elapsed time since round start.
var DefaultGuessTable = ScoreTable{
	{Within: 10 * time.Second, Points: 500},
	{Within: 20 * time.Second, Points: 400},
	{Within: 30 * time.Second, Points: 300},
	{Within: 40 * time.Second, Points: 200},
	{Within: 50 * time.Second, Points: 150},
	{Within: 0, Points: 100},
}

// DefaultDrawerTable scores the drawer when the oracle recognizes an early
// submission.
var DefaultDrawerTable = ScoreTable{
	{Within: 15 * time.Second, Points: 300},
	{Within: 35 * time.Second, Points: 200},
	{Within: 0, Points: 150},
}

// Award returns the points for a correct answer after elapsed time.
func (t ScoreTable) Award(elapsed time.Duration) int {
	if len(t) == 0 {
		return 0
	}
	for _, tier := range t {
		if tier.Within > 0 && elapsed <= tier.Within {
			return tier.Points
		}
	}
	return t[len(t)-1].Points
}

// fuzzyMatchMinLen is the minimum word length (in runes) before a guess one
// edit away from the word still counts.
const fuzzyMatchMinLen = 5

// MatchesWord reports whether a guess hits the secret word. Comparison is
// case-insensitive and whitespace-trimmed; for words of fuzzyMatchMinLen runes
// or more, an edit distance of one forgives a typo.
func MatchesWord(guess, word string) bool {
	guess = strings.ToLower(strings.TrimSpace(guess))
	word = strings.ToLower(strings.TrimSpace(word))
	if guess == "" || word == "" {
		return false
	}
	if guess == word {
		return true
	}
	if utf8.RuneCountInString(word) >= fuzzyMatchMinLen {
		return editDistance(guess, word) <= 1
	}
	return false
}

// editDistance computes the Levenshtein distance between two strings.
func editDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

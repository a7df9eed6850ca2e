// internal/game/words.go
package game

import (
	"bufio"
	"math/rand"
	"os"
	"strings"
	"sync"
)

// defaultCategories is the category set the recognition oracle is trained on.
var defaultCategories = []string{
	"apple", "airplane", "cat", "bicycle", "dog", "car", "fish",
	"house", "tree", "bird", "banana", "pencil", "flower", "sun",
}

// WordBank is a fixed category set words are drawn from. One bank is shared
// by every room's session, so the non-thread-safe rand source is guarded.
type WordBank struct {
	words []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewWordBank builds a bank over the oracle's default categories.
func NewWordBank() *WordBank {
	return NewWordBankWith(defaultCategories, rand.New(rand.NewSource(rand.Int63())))
}

// NewWordBankWith builds a bank over an explicit word list and random source.
// Tests pass a seeded source for determinism.
func NewWordBankWith(words []string, rng *rand.Rand) *WordBank {
	owned := make([]string, len(words))
	copy(owned, words)
	return &WordBank{words: owned, rng: rng}
}

// LoadWordBank reads one word per line from path, falling back to the default
// categories if the file is empty.
func LoadWordBank(path string) (*WordBank, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word != "" {
			words = append(words, strings.ToLower(word))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		words = defaultCategories
	}
	return NewWordBankWith(words, rand.New(rand.NewSource(rand.Int63()))), nil
}

// Words returns the bank's full category list.
func (b *WordBank) Words() []string {
	out := make([]string, len(b.words))
	copy(out, b.words)
	return out
}

// Pick returns k distinct words from the bank. If k exceeds the bank size,
// every word is returned once.
func (b *WordBank) Pick(k int) []string {
	if k > len(b.words) {
		k = len(b.words)
	}
	b.mu.Lock()
	perm := b.rng.Perm(len(b.words))
	b.mu.Unlock()
	out := make([]string, 0, k)
	for _, idx := range perm[:k] {
		out = append(out, b.words[idx])
	}
	return out
}

// MaskWord produces the underscore hint shown to guessers; spaces survive so
// multi-word categories keep their shape.
func MaskWord(word string) string {
	var sb strings.Builder
	for _, r := range word {
		if r == ' ' {
			sb.WriteRune(' ')
		} else {
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

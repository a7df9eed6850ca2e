// internal/game/words_test.go
package game

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func TestPickReturnsDistinctWords(t *testing.T) {
	bank := NewWordBankWith(defaultCategories, newTestRand())

	for i := 0; i < 20; i++ {
		picked := bank.Pick(3)
		require.Len(t, picked, 3)
		seen := map[string]bool{}
		for _, w := range picked {
			assert.False(t, seen[w], "duplicate word %q in pick", w)
			assert.Contains(t, defaultCategories, w)
			seen[w] = true
		}
	}
}

func TestPickIsSafeForConcurrentSessions(t *testing.T) {
	bank := NewWordBankWith(defaultCategories, newTestRand())

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				picked := bank.Pick(3)
				assert.Len(t, picked, 3)
			}
		}()
	}
	wg.Wait()
}

func TestPickClampsToBankSize(t *testing.T) {
	bank := NewWordBankWith([]string{"cat", "dog"}, newTestRand())
	assert.Len(t, bank.Pick(10), 2)
}

func TestSeededBanksPickIdentically(t *testing.T) {
	a := NewWordBankWith(defaultCategories, rand.New(rand.NewSource(7)))
	b := NewWordBankWith(defaultCategories, rand.New(rand.NewSource(7)))
	assert.Equal(t, a.Pick(3), b.Pick(3))
}

func TestLoadWordBank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("Cat\n\n  Dog  \nfish\n"), 0o644))

	bank, err := LoadWordBank(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cat", "dog", "fish"}, bank.Words())
}

func TestLoadWordBankEmptyFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	bank, err := LoadWordBank(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, defaultCategories, bank.Words())
}

func TestLoadWordBankMissingFile(t *testing.T) {
	_, err := LoadWordBank(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestMaskWordPreservesSpaces(t *testing.T) {
	assert.Equal(t, "___", MaskWord("cat"))
	assert.Equal(t, "___ ____", MaskWord("hot dogs"))
	assert.Equal(t, "", MaskWord(""))
}

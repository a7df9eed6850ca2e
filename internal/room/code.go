// internal/room/code.go
package room

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
)

// codeAlphabet deliberately omits 0/O, 1/I and L so codes survive being read
// aloud or copied by hand.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeLength is the fixed length of every access code.
const CodeLength = 6

// maxIssueAttempts bounds the rejection-sampling loop in Issue before the
// issuer declares the code space exhausted.
const maxIssueAttempts = 64

// ErrCodeSpaceExhausted is returned when Issue cannot find an unused code.
var ErrCodeSpaceExhausted = errors.New("room: access code space exhausted")

// CodeIssuer hands out unique human-typable access codes and reclaims them
// when rooms are destroyed.
type CodeIssuer struct {
	mu    sync.Mutex
	rng   *rand.Rand
	inUse map[string]bool
}

// NewCodeIssuer builds an issuer around the given random source. Tests pass a
// seeded source.
func NewCodeIssuer(rng *rand.Rand) *CodeIssuer {
	return &CodeIssuer{
		rng:   rng,
		inUse: make(map[string]bool),
	}
}

// Issue returns a fresh code not currently assigned to any room.
func (ci *CodeIssuer) Issue() (string, error) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code := ci.randomCodeLocked()
		if !ci.inUse[code] {
			ci.inUse[code] = true
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// Release returns a code to the pool. Releasing an unknown code is a no-op.
func (ci *CodeIssuer) Release(code string) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	delete(ci.inUse, NormalizeCode(code))
}

// Issued reports whether code is currently assigned.
func (ci *CodeIssuer) Issued(code string) bool {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return ci.inUse[NormalizeCode(code)]
}

func (ci *CodeIssuer) randomCodeLocked() string {
	var sb strings.Builder
	sb.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		sb.WriteByte(codeAlphabet[ci.rng.Intn(len(codeAlphabet))])
	}
	return sb.String()
}

// NormalizeCode upper-cases a code the way users are allowed to type it.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCodeShape reports whether code has the right length and alphabet. It
// says nothing about whether the code is issued.
func ValidCodeShape(code string) bool {
	code = NormalizeCode(code)
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

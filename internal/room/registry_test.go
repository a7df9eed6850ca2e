// internal/room/registry_test.go
package room

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewRegistry(logger)
}

func TestCreateRoomAssignsUniqueCodes(t *testing.T) {
	reg := newTestRegistry()
	seen := map[string]bool{}

	for i := 0; i < 50; i++ {
		r, err := reg.CreateRoom("room", VisibilityPrivate)
		require.NoError(t, err)
		require.True(t, ValidCodeShape(r.AccessCode))
		assert.False(t, seen[r.AccessCode], "code %q issued twice", r.AccessCode)
		seen[r.AccessCode] = true
	}
	assert.Equal(t, 50, reg.Len())
}

func TestResolveByIDAndCode(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.CreateRoom("room", VisibilityPrivate)
	require.NoError(t, err)

	byID, err := reg.Resolve(r.ID.String())
	require.NoError(t, err)
	assert.Same(t, r, byID)

	byCode, err := reg.Resolve(r.AccessCode)
	require.NoError(t, err)
	assert.Same(t, r, byCode)

	// Codes are case-insensitive on input.
	byLower, err := reg.Resolve(strings.ToLower(r.AccessCode))
	require.NoError(t, err)
	assert.Same(t, r, byLower)
}

func TestResolveErrors(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.Resolve(uuid.NewString())
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = reg.Resolve("short")
	assert.ErrorIs(t, err, ErrInvalidAccessCode)

	_, err = reg.Resolve("AAAAAA")
	assert.ErrorIs(t, err, ErrInvalidAccessCode)

	// Right shape, never issued.
	_, err = reg.Resolve("234567")
	assert.ErrorIs(t, err, ErrInvalidAccessCode)
}

func TestDestroyReleasesCode(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.CreateRoom("room", VisibilityPrivate)
	require.NoError(t, err)
	code := r.AccessCode

	reg.Destroy(r.ID)
	assert.Zero(t, reg.Len())

	_, err = reg.ResolveCode(code)
	assert.ErrorIs(t, err, ErrInvalidAccessCode)

	// Destroying again is harmless.
	reg.Destroy(r.ID)
}

func TestEmptyRoomDestroysItself(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.CreateRoom("room", VisibilityPrivate)
	require.NoError(t, err)

	alice := uuid.New()
	require.NoError(t, r.Join(alice, "alice"))
	r.Leave(alice)

	assert.Zero(t, reg.Len())
	_, err = reg.Get(r.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestListPublicOmitsPrivateRooms(t *testing.T) {
	reg := newTestRegistry()
	pub, err := reg.CreateRoom("open", VisibilityPublic)
	require.NoError(t, err)
	_, err = reg.CreateRoom("hidden", VisibilityPrivate)
	require.NoError(t, err)

	require.NoError(t, pub.Join(uuid.New(), "alice"))

	list := reg.ListPublic()
	require.Len(t, list, 1)
	assert.Equal(t, pub.ID, list[0].RoomID)
	assert.Equal(t, 1, list[0].MemberCount)
	assert.False(t, list[0].InGame)
}

package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"musink/domain"
	"musink/errors"
)

func TestSessionRegistry_Create_And_Get(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry()
	sink := &recordSink{}
	token := domain.TokenBundle{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour)}

	// Given no session is registered
	req.Zero(registry.Len())

	// When a session is created
	req.NoError(registry.Create("alice", token, sink))

	// Then it is retrievable with its token and connection
	session, err := registry.Get("alice")
	req.NoError(err)
	req.Equal("alice", session.Code)
	req.Equal("access", session.Token.AccessToken)

	got, ok := registry.Sink("alice")
	req.True(ok)
	req.Same(sink, got.(*recordSink))
}

func TestSessionRegistry_Create_RejectsDuplicate(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry()
	first := &recordSink{}
	token := domain.TokenBundle{AccessToken: "original"}

	// Given a registered session
	req.NoError(registry.Create("alice", token, first))

	// When the same code registers again
	err := registry.Create("alice", domain.TokenBundle{AccessToken: "intruder"}, &recordSink{})

	// Then the duplicate is refused and the first session is untouched
	req.ErrorIs(err, errors.ErrDuplicateSession)
	session, getErr := registry.Get("alice")
	req.NoError(getErr)
	req.Equal("original", session.Token.AccessToken)
	sink, ok := registry.Sink("alice")
	req.True(ok)
	req.Same(first, sink.(*recordSink))
}

func TestSessionRegistry_Create_RejectsEmptyCode(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry()

	err := registry.Create("", domain.TokenBundle{}, &recordSink{})

	req.ErrorIs(err, errors.ErrMalformedMessage)
	req.Zero(registry.Len())
}

func TestSessionRegistry_Remove(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry()
	req.NoError(registry.Create("alice", domain.TokenBundle{}, &recordSink{}))
	req.NoError(registry.SetGroup("alice", 7))

	// When removing the session
	last, err := registry.Remove("alice")

	// Then its last state comes back and nothing remains
	req.NoError(err)
	req.EqualValues(7, last.GroupID)
	_, err = registry.Get("alice")
	req.ErrorIs(err, errors.ErrUnknownSession)
	_, ok := registry.Sink("alice")
	req.False(ok)
}

func TestSessionRegistry_SetGroup_UnknownSession(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry()

	err := registry.SetGroup("ghost", 1)

	req.ErrorIs(err, errors.ErrUnknownSession)
}

package runtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"musink/domain"
	"musink/errors"
	"musink/protocol"
)

// recordSink captures every frame pushed to a connection so tests can
// assert on broadcast content and count.
type recordSink struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (s *recordSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("sink closed")
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordSink) lastSnapshot(t *testing.T) []protocol.GroupView {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.frames)

	msg, err := protocol.Parse(s.frames[len(s.frames)-1])
	require.NoError(t, err)
	require.Equal(t, protocol.TypeAdvertisingGroups, msg.Type)

	var views []protocol.GroupView
	require.NoError(t, json.Unmarshal(msg.Data, &views))
	return views
}

func newTestCoordinator() *Coordinator {
	return NewCoordinator(slog.Default(), NewSessionRegistry(), NewGroupRegistry())
}

func TestCoordinator_CreateSession_SingletonGroupAndBroadcast(t *testing.T) {
	req := require.New(t)
	coordinator := newTestCoordinator()
	aliceSink := &recordSink{}
	bobSink := &recordSink{}

	// Given one connected session
	_, err := coordinator.CreateSession("alice", domain.TokenBundle{}, aliceSink)
	req.NoError(err)

	// When a second session is created
	bobGroup, err := coordinator.CreateSession("bob", domain.TokenBundle{}, bobSink)
	req.NoError(err)

	// Then both sessions hear a snapshot with two singleton groups
	views := aliceSink.lastSnapshot(t)
	req.Len(views, 2)
	req.Equal(views, bobSink.lastSnapshot(t))

	session, err := coordinator.Session("bob")
	req.NoError(err)
	req.Equal(bobGroup, session.GroupID)
}

func TestCoordinator_CreateSession_RejectsDuplicate(t *testing.T) {
	req := require.New(t)
	coordinator := newTestCoordinator()
	sink := &recordSink{}
	_, err := coordinator.CreateSession("alice", domain.TokenBundle{}, sink)
	req.NoError(err)
	before := sink.count()

	// When the same code connects again
	_, err = coordinator.CreateSession("alice", domain.TokenBundle{}, &recordSink{})

	// Then the duplicate is refused and nothing is broadcast
	req.ErrorIs(err, errors.ErrDuplicateSession)
	req.Len(coordinator.Snapshot(), 1)
	req.Equal(before, sink.count())
}

func TestCoordinator_Join_MovesAndDissolves(t *testing.T) {
	req := require.New(t)
	coordinator := newTestCoordinator()
	aliceSink := &recordSink{}
	bobSink := &recordSink{}
	bobGroup, err := coordinator.CreateSession("bob", domain.TokenBundle{}, bobSink)
	req.NoError(err)
	_, err = coordinator.CreateSession("alice", domain.TokenBundle{}, aliceSink)
	req.NoError(err)

	// When alice joins bob's group
	req.NoError(coordinator.Join("alice", bobGroup))

	// Then her singleton group dissolved and the broadcast shows one group
	views := aliceSink.lastSnapshot(t)
	req.Len(views, 1)
	req.Equal([]string{"bob", "alice"}, views[0].Clients)

	session, err := coordinator.Session("alice")
	req.NoError(err)
	req.Equal(bobGroup, session.GroupID)
}

func TestCoordinator_Join_UnknownGroupLeavesStateUnchanged(t *testing.T) {
	req := require.New(t)
	coordinator := newTestCoordinator()
	sink := &recordSink{}
	ownGroup, err := coordinator.CreateSession("alice", domain.TokenBundle{}, sink)
	req.NoError(err)
	before := sink.count()

	// When joining a group that does not exist
	err = coordinator.Join("alice", ownGroup+100)

	// Then the error is reported and nothing moved or broadcast
	req.ErrorIs(err, errors.ErrUnknownGroup)
	session, getErr := coordinator.Session("alice")
	req.NoError(getErr)
	req.Equal(ownGroup, session.GroupID)
	req.Len(coordinator.Snapshot(), 1)
	req.Equal(before, sink.count())
}

func TestCoordinator_Join_OwnGroupIsNoOp(t *testing.T) {
	req := require.New(t)
	coordinator := newTestCoordinator()
	sink := &recordSink{}
	ownGroup, err := coordinator.CreateSession("alice", domain.TokenBundle{}, sink)
	req.NoError(err)
	before := sink.count()

	// When joining the group the session is already in
	req.NoError(coordinator.Join("alice", ownGroup))

	// Then membership is untouched and no broadcast goes out
	views := coordinator.Snapshot()
	req.Len(views, 1)
	req.Equal([]string{"alice"}, views[0].Clients)
	req.Equal(before, sink.count())
}

func TestCoordinator_Leave_DissolvesEmptiedGroup(t *testing.T) {
	req := require.New(t)
	coordinator := newTestCoordinator()
	aliceSink := &recordSink{}
	bobSink := &recordSink{}
	bobGroup, err := coordinator.CreateSession("bob", domain.TokenBundle{}, bobSink)
	req.NoError(err)
	_, err = coordinator.CreateSession("alice", domain.TokenBundle{}, aliceSink)
	req.NoError(err)
	req.NoError(coordinator.Join("alice", bobGroup))

	// When bob disconnects
	coordinator.Leave("bob")

	// Then his session is gone, the shared group survives with alice
	_, err = coordinator.Session("bob")
	req.ErrorIs(err, errors.ErrUnknownSession)
	views := aliceSink.lastSnapshot(t)
	req.Len(views, 1)
	req.Equal([]string{"alice"}, views[0].Clients)

	// When alice disconnects as well
	coordinator.Leave("alice")

	// Then the emptied group dissolves
	req.Empty(coordinator.Snapshot())
}

func TestCoordinator_Leave_UnknownSessionIsNoOp(t *testing.T) {
	req := require.New(t)
	coordinator := newTestCoordinator()
	sink := &recordSink{}
	_, err := coordinator.CreateSession("alice", domain.TokenBundle{}, sink)
	req.NoError(err)
	before := sink.count()

	coordinator.Leave("ghost")

	req.Len(coordinator.Snapshot(), 1)
	req.Equal(before, sink.count())
}

func TestCoordinator_GroupTokens(t *testing.T) {
	req := require.New(t)
	coordinator := newTestCoordinator()
	bobGroup, err := coordinator.CreateSession("bob", domain.TokenBundle{AccessToken: "tok-bob"}, &recordSink{})
	req.NoError(err)
	_, err = coordinator.CreateSession("alice", domain.TokenBundle{AccessToken: "tok-alice"}, &recordSink{})
	req.NoError(err)

	// Given a singleton group there is nothing mutual to compute
	_, _, err = coordinator.GroupTokens("alice")
	req.ErrorIs(err, errors.ErrGroupTooSmall)

	// When alice joins bob
	req.NoError(coordinator.Join("alice", bobGroup))

	// Then tokens come back in member order
	groupID, tokens, err := coordinator.GroupTokens("alice")
	req.NoError(err)
	req.Equal(bobGroup, groupID)
	req.Equal([]string{"tok-bob", "tok-alice"}, tokens)
}

func TestCoordinator_Deliver(t *testing.T) {
	req := require.New(t)
	coordinator := newTestCoordinator()
	sink := &recordSink{}
	_, err := coordinator.CreateSession("alice", domain.TokenBundle{}, sink)
	req.NoError(err)
	before := sink.count()

	// When delivering to a live session
	req.NoError(coordinator.Deliver("alice", []byte(`{"message_type":"mutual_playlist_result"}`)))
	req.Equal(before+1, sink.count())

	// Then a gone session is reported, not swallowed
	err = coordinator.Deliver("ghost", []byte(`{}`))
	req.ErrorIs(err, errors.ErrUnknownSession)
}

func TestCoordinator_ConcurrentJoins_KeepMembershipConsistent(t *testing.T) {
	req := require.New(t)
	coordinator := newTestCoordinator()
	targetGroup, err := coordinator.CreateSession("host", domain.TokenBundle{}, &recordSink{})
	req.NoError(err)

	const joiners = 32
	codes := make([]string, 0, joiners)
	for i := 0; i < joiners; i++ {
		code := fmt.Sprintf("guest-%d", i)
		codes = append(codes, code)
		_, err := coordinator.CreateSession(code, domain.TokenBundle{}, &recordSink{})
		req.NoError(err)
	}

	// When every guest joins the host's group at the same time
	var wg sync.WaitGroup
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			req.NoError(coordinator.Join(code, targetGroup))
		}(code)
	}
	wg.Wait()

	// Then one group remains and every code appears in exactly one group
	views := coordinator.Snapshot()
	req.Len(views, 1)
	req.Len(views[0].Clients, joiners+1)

	seen := make(map[string]int)
	for _, view := range views {
		for _, member := range view.Clients {
			seen[member]++
		}
	}
	for _, code := range append(codes, "host") {
		req.Equal(1, seen[code], "code %s must be in exactly one group", code)
	}
}

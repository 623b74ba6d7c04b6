// Package runtime owns the shared mutable state of the coordination
// process: the session registry, the group registry, and the worker
// broker. It contains no transport logic; the server package feeds it
// parsed frames and it feeds serialized frames back through FrameSinks.
package runtime

import (
	"fmt"
	"log/slog"
	"sync"

	"musink/contract"
	"musink/domain"
	"musink/errors"
	"musink/protocol"
)

// Coordinator is the group membership state machine. Every transition
// (session creation, join, leave) runs under a single mutex so that
// compound operations are atomic and each broadcast reflects the registry
// state at the moment its transition completed. Group counts are small;
// serialization is the correctness requirement, not a bottleneck.
type Coordinator struct {
	mu       sync.Mutex
	log      *slog.Logger
	sessions *SessionRegistry
	groups   *GroupRegistry
}

func NewCoordinator(log *slog.Logger, sessions *SessionRegistry, groups *GroupRegistry) *Coordinator {
	return &Coordinator{log: log, sessions: sessions, groups: groups}
}

// CreateSession registers a session for code and places it in a fresh
// singleton group, then broadcasts the new snapshot. Duplicate codes are
// rejected and leave existing state untouched.
func (c *Coordinator) CreateSession(code string, token domain.TokenBundle, sink contract.FrameSink) (domain.GroupID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sessions.Create(code, token, sink); err != nil {
		return 0, err
	}
	groupID, err := c.groups.Allocate(code)
	if err != nil {
		// Id exhaustion: roll the session back so no half-created state
		// survives. The caller escalates this as an administrative fault.
		_, _ = c.sessions.Remove(code)
		return 0, err
	}
	if err := c.sessions.SetGroup(code, groupID); err != nil {
		c.groups.Remove(groupID)
		return 0, err
	}

	c.broadcastLocked()
	return groupID, nil
}

// Join moves code from its current group into targetID: remove from the
// current group, dissolve it if emptied, append to the target, repoint
// the session. The whole transition is atomic; a missing target or
// session leaves all registry state unchanged.
func (c *Coordinator) Join(code string, targetID domain.GroupID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.sessions.Get(code)
	if err != nil {
		return err
	}
	target, err := c.groups.Get(targetID)
	if err != nil {
		return err
	}
	if session.GroupID == targetID {
		// Already a member; nothing moves, nothing is broadcast.
		return nil
	}

	if current, err := c.groups.Get(session.GroupID); err == nil {
		current.RemoveMember(code)
		if current.Empty() {
			c.groups.Remove(current.ID)
		}
	} else {
		c.log.Warn("session pointed at a missing group", "code", code, "group_id", int(session.GroupID))
	}

	target.Members = append(target.Members, code)
	if err := c.sessions.SetGroup(code, targetID); err != nil {
		return err
	}

	c.broadcastLocked()
	return nil
}

// Leave removes code's session and takes it out of its group, dissolving
// the group if it empties, then broadcasts. Triggered by connection
// close; it is a defensive no-op when the session is already gone so
// cleanup can never fail.
func (c *Coordinator) Leave(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.sessions.Remove(code)
	if err != nil {
		return
	}
	if group, err := c.groups.Get(session.GroupID); err == nil {
		group.RemoveMember(code)
		if group.Empty() {
			c.groups.Remove(group.ID)
		}
	}

	c.broadcastLocked()
}

// Snapshot returns the current full group list for a snapshot reply.
func (c *Coordinator) Snapshot() []protocol.GroupView {
	return c.groups.Views()
}

// Session returns a copy of the session registered under code.
func (c *Coordinator) Session(code string) (domain.Session, error) {
	return c.sessions.Get(code)
}

// SetToken stores a refreshed token bundle on the session.
func (c *Coordinator) SetToken(code string, token domain.TokenBundle) error {
	return c.sessions.SetToken(code, token)
}

// Deliver pushes a frame to a single session's connection, if it is
// still live.
func (c *Coordinator) Deliver(code string, frame []byte) error {
	sink, ok := c.sessions.Sink(code)
	if !ok {
		return fmt.Errorf("%w: %q", errors.ErrUnknownSession, code)
	}
	return sink.Send(frame)
}

// GroupTokens collects the access tokens of every member of code's
// group, in member order, for the mutual playlist computation. A group
// below two members is refused: there is nothing mutual to compute.
func (c *Coordinator) GroupTokens(code string) (domain.GroupID, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.sessions.Get(code)
	if err != nil {
		return 0, nil, err
	}
	group, err := c.groups.Get(session.GroupID)
	if err != nil {
		return 0, nil, err
	}
	if len(group.Members) < 2 {
		return 0, nil, errors.ErrGroupTooSmall
	}

	tokens := make([]string, 0, len(group.Members))
	for _, member := range group.Members {
		s, err := c.sessions.Get(member)
		if err != nil {
			c.log.Warn("group member has no session", "code", member)
			continue
		}
		tokens = append(tokens, s.Token.AccessToken)
	}
	return group.ID, tokens, nil
}

// broadcastLocked pushes the full current snapshot to every live
// session. Full-snapshot rather than incremental is a deliberate
// trade-off: group counts stay small and clients stay stateless.
// Callers must hold c.mu so the frame matches the triggering transition.
func (c *Coordinator) broadcastLocked() {
	frame, err := protocol.Groups(c.groups.Views())
	if err != nil {
		c.log.Error("failed to encode group snapshot", "error", err)
		return
	}
	for _, sink := range c.sessions.Sinks() {
		if err := sink.Send(frame); err != nil {
			c.log.Warn("broadcast delivery failed", "error", err)
		}
	}
}

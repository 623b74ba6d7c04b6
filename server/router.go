package server

import (
	"context"
	"log/slog"
	"time"

	"musink/auth"
	"musink/contract"
	"musink/domain"
	"musink/observability"
	"musink/protocol"
	"musink/runtime"
)

// Router is the stateless dispatcher between parsed frames and the
// runtime components. Each handler runs to completion inside the
// connection's read loop, so frames on one connection are processed in
// order while connections stay independent of each other.
type Router struct {
	log            *slog.Logger
	coordinator    *runtime.Coordinator
	broker         *runtime.WorkerBroker
	tokens         contract.TokenExchanger
	content        contract.ContentFetcher
	correlator     *auth.Correlator
	monitor        *observability.Monitor
	adapterTimeout time.Duration
}

func NewRouter(log *slog.Logger, coordinator *runtime.Coordinator, broker *runtime.WorkerBroker,
	tokens contract.TokenExchanger, content contract.ContentFetcher,
	correlator *auth.Correlator, monitor *observability.Monitor, adapterTimeout time.Duration) *Router {
	return &Router{
		log:            log,
		coordinator:    coordinator,
		broker:         broker,
		tokens:         tokens,
		content:        content,
		correlator:     correlator,
		monitor:        monitor,
		adapterTimeout: adapterTimeout,
	}
}

// HandleUserFrame dispatches one frame from the user endpoint.
// Failures are converted into an error reply to the originating
// connection only; they are never broadcast and never fatal.
func (r *Router) HandleUserFrame(client connection, raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		r.log.Warn("unparseable user frame", "error", err)
		r.replyError(client, err)
		return
	}

	switch msg.Type {
	case protocol.TypeNewClient:
		r.handleNewClient(client, msg)
	case protocol.TypeGetPlaylists:
		r.handleGetPlaylists(client)
	case protocol.TypeGetAdvertisingGroups:
		r.handleGetAdvertisingGroups(client)
	case protocol.TypeJoinGroup:
		r.handleJoinGroup(client, msg)
	case protocol.TypeMakeMutualPlaylist:
		r.handleMakeMutualPlaylist(client)
	default:
		// Unrecognized types are dropped, not answered: the enumeration
		// is closed but extensible and an old server must tolerate a
		// newer client.
		r.log.Info("ignoring unrecognized message type", "type", msg.Type)
	}
}

func (r *Router) handleNewClient(client connection, msg protocol.Message) {
	authCode, err := msg.AuthCode()
	if err != nil {
		r.replyError(client, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.adapterTimeout)
	defer cancel()

	bundle, err := r.tokens.Exchange(ctx, authCode)
	if err != nil {
		r.log.Warn("token exchange failed", "error", err)
		r.replyError(client, err)
		return
	}

	if _, err := r.coordinator.CreateSession(authCode, bundle, client); err != nil {
		r.replyError(client, err)
		return
	}
	client.bindSession(authCode)
	r.monitor.SessionOpened()
}

func (r *Router) handleGetPlaylists(client connection) {
	session, err := r.boundSession(client)
	if err != nil {
		r.replyError(client, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.adapterTimeout)
	defer cancel()

	token, err := r.freshToken(ctx, session)
	if err != nil {
		r.replyError(client, err)
		return
	}
	document, err := r.content.Playlists(ctx, token)
	if err != nil {
		r.log.Warn("playlist fetch failed", "error", err)
		r.replyError(client, err)
		return
	}

	frame, err := protocol.Playlists(document)
	if err != nil {
		r.log.Error("failed to encode playlists reply", "error", err)
		return
	}
	if err := client.Send(frame); err != nil {
		r.log.Warn("playlists reply not delivered", "error", err)
	}
}

// handleGetAdvertisingGroups answers the requesting connection only; it
// is the pull counterpart of the broadcast and needs no session.
func (r *Router) handleGetAdvertisingGroups(client connection) {
	frame, err := protocol.Groups(r.coordinator.Snapshot())
	if err != nil {
		r.log.Error("failed to encode group snapshot", "error", err)
		return
	}
	if err := client.Send(frame); err != nil {
		r.log.Warn("snapshot reply not delivered", "error", err)
	}
}

func (r *Router) handleJoinGroup(client connection, msg protocol.Message) {
	targetID, code, err := msg.JoinTarget()
	if err != nil {
		r.replyError(client, err)
		return
	}
	if err := r.coordinator.Join(code, targetID); err != nil {
		r.replyError(client, err)
		return
	}
	r.monitor.JoinApplied()
}

func (r *Router) handleMakeMutualPlaylist(client connection) {
	session, err := r.boundSession(client)
	if err != nil {
		r.replyError(client, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.adapterTimeout)
	defer cancel()
	if _, err := r.freshToken(ctx, session); err != nil {
		r.replyError(client, err)
		return
	}

	groupID, accessTokens, err := r.coordinator.GroupTokens(session.Code)
	if err != nil {
		r.replyError(client, err)
		return
	}
	correlation, err := r.correlator.Issue(session.Code, groupID)
	if err != nil {
		r.log.Error("failed to issue correlation token", "error", err)
		r.replyError(client, err)
		return
	}
	frame, err := protocol.MutualPlaylistRequest(accessTokens, correlation)
	if err != nil {
		r.log.Error("failed to encode worker payload", "error", err)
		return
	}
	if err := r.broker.Route(protocol.ServiceMutualPlaylist, frame); err != nil {
		r.log.Warn("mutual playlist request not routed", "error", err)
		r.replyError(client, err)
		return
	}
	r.monitor.WorkerRequested()
}

// HandleWorkerFrame dispatches one frame from the worker endpoint.
func (r *Router) HandleWorkerFrame(client connection, raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		r.log.Warn("unparseable worker frame", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeNewService:
		name, err := msg.ServiceName()
		if err != nil {
			r.log.Warn("worker registration refused", "error", err)
			return
		}
		if err := r.broker.Register(name, client); err != nil {
			r.log.Warn("worker registration refused", "error", err)
			return
		}
		client.bindService(name)
		r.log.Info("worker registered", "service", name)

	case protocol.TypeResult:
		r.handleWorkerResult(msg)

	default:
		r.log.Info("ignoring unrecognized worker message type", "type", msg.Type)
	}
}

// handleWorkerResult routes a computed result back to the session that
// asked for it. The correlation token the worker echoes is the only
// thing trusted: a result with a bad signature or for a session that is
// gone is dropped.
func (r *Router) handleWorkerResult(msg protocol.Message) {
	claims, err := r.correlator.Verify(msg.Token)
	if err != nil {
		r.log.Warn("worker result with invalid correlation token", "error", err)
		return
	}
	frame, err := protocol.MutualPlaylistResult(msg.Data)
	if err != nil {
		r.log.Error("failed to encode result delivery", "error", err)
		return
	}
	if err := r.coordinator.Deliver(claims.SessionCode, frame); err != nil {
		r.log.Info("requester gone before result arrived", "code", claims.SessionCode)
		return
	}
	r.monitor.ResultDelivered()
}

// UserClosed runs when a user connection dies, before its goroutine
// exits: the session leaves its group, the group dissolves if emptied,
// and everyone left hears about it.
func (r *Router) UserClosed(client connection) {
	if code := client.session(); code != "" {
		r.coordinator.Leave(code)
		r.monitor.SessionClosed()
	}
}

// WorkerClosed prunes the broker entry so a dead worker fails fast as
// ErrNotRegistered instead of swallowing routed payloads.
func (r *Router) WorkerClosed(client connection) {
	if name := client.service(); name != "" {
		r.broker.Deregister(name, client)
		r.log.Info("worker deregistered", "service", name)
	}
}

func (r *Router) boundSession(client connection) (domain.Session, error) {
	return r.coordinator.Session(client.session())
}

// freshToken returns a usable access token for the session, refreshing
// and storing the bundle when it has expired.
func (r *Router) freshToken(ctx context.Context, session domain.Session) (string, error) {
	if !session.Token.Expired() {
		return session.Token.AccessToken, nil
	}
	bundle, err := r.tokens.Refresh(ctx, session.Token.RefreshToken)
	if err != nil {
		return "", err
	}
	if err := r.coordinator.SetToken(session.Code, bundle); err != nil {
		return "", err
	}
	return bundle.AccessToken, nil
}

func (r *Router) replyError(client connection, cause error) {
	r.monitor.ErrorReplied()
	frame, err := protocol.Error(cause)
	if err != nil {
		r.log.Error("failed to encode error reply", "error", err)
		return
	}
	if err := client.Send(frame); err != nil {
		r.log.Warn("error reply not delivered", "error", err)
	}
}

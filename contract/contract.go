//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"encoding/json"
	"reflect"

	"musink/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself; the supervisor recovers its panics.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// FrameSink pushes one serialized frame to a live connection.
// Implementations must be safe for concurrent use and must not block
// the caller on a slow peer.
type FrameSink interface {
	Send(frame []byte) error
}

// TokenExchanger wraps the identity-provider call: an authorization code
// in, a token bundle or an error out.
type TokenExchanger interface {
	Exchange(ctx context.Context, authCode string) (domain.TokenBundle, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenBundle, error)
}

// ContentFetcher wraps the content-API call. The returned document is
// passed through to the client verbatim.
type ContentFetcher interface {
	Playlists(ctx context.Context, accessToken string) (json.RawMessage, error)
}

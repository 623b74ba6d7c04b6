package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"musink/auth"
	"musink/observability"
)

var upgrader = websocket.Upgrader{
	// Browser clients are served from a different origin in every
	// deployment we run, so origin checking is delegated to the proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Endpoint is a supervised worker serving one HTTP listener. Both
// WebSocket endpoints and the plain HTTP surface are Endpoints; only the
// handler differs.
type Endpoint struct {
	log     *slog.Logger
	name    string
	addr    string
	handler http.Handler
}

// Run serves until the context is canceled, then shuts the listener down
// gracefully. A clean shutdown reports nil so the supervisor does not
// restart the endpoint.
func (e *Endpoint) Run(ctx context.Context) error {
	srv := &http.Server{Addr: e.addr, Handler: e.handler}

	errChan := make(chan error, 1)
	go func() {
		e.log.Info("listener started", "endpoint", e.name, "address", e.addr)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errChan:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// NewUserEndpoint accepts end-user connections and feeds their frames to
// the router. One goroutine pair per connection; the read side runs in
// the handler goroutine so the HTTP server tracks connection lifetime.
func NewUserEndpoint(log *slog.Logger, addr string, router *Router, sendBuffer int) *Endpoint {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("user upgrade failed", "error", err)
			return
		}
		client := newWSClient(log, conn, sendBuffer)
		go client.writePump()
		client.readPump(router.HandleUserFrame, router.UserClosed)
	})
	return &Endpoint{log: log, name: "users", addr: addr, handler: mux}
}

// NewWorkerEndpoint accepts computation-service connections.
func NewWorkerEndpoint(log *slog.Logger, addr string, router *Router, sendBuffer int) *Endpoint {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("worker upgrade failed", "error", err)
			return
		}
		client := newWSClient(log, conn, sendBuffer)
		go client.writePump()
		client.readPump(router.HandleWorkerFrame, router.WorkerClosed)
	})
	return &Endpoint{log: log, name: "workers", addr: addr, handler: mux}
}

type authURLProvider interface {
	AuthURL(state string) string
}

// NewWebEndpoint serves the stateless HTTP surface: the provider login
// redirect, a liveness probe, and the telemetry snapshot.
func NewWebEndpoint(log *slog.Logger, addr string, provider authURLProvider, correlator *auth.Correlator, monitor *observability.Monitor) *Endpoint {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		state, err := correlator.State()
		if err != nil {
			log.Error("failed to mint login state", "error", err)
			http.Error(w, "login unavailable", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, provider.AuthURL(state), http.StatusFound)
	})

	mux.HandleFunc("/test", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(monitor.Latest())
	})

	return &Endpoint{log: log, name: "web", addr: addr, handler: mux}
}

// The mutualplaylist worker connects to the coordination server's worker
// endpoint, registers under the MutualPlaylist service name, and builds a
// collaborative playlist from the intersection of a group's top tracks
// whenever a request arrives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/time/rate"

	"musink/protocol"
	"musink/spotify"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	ServerURL         string        `envconfig:"MUSINK_WORKER_URL" default:"ws://localhost:8082"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	RequestsPerSecond float64       `envconfig:"SPOTIFY_REQUESTS_PER_SECOND" default:"5"`
	Burst             int           `envconfig:"SPOTIFY_BURST" default:"10"`
	ComputeTimeout    time.Duration `envconfig:"COMPUTE_TIMEOUT" default:"2m"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Worker error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect and register under the service name.
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	registration, err := protocol.Register(protocol.ServiceMutualPlaylist)
	if err != nil {
		return exitRuntime, err
	}
	// The connection is written to by concurrent result deliveries, and
	// gorilla connections allow only one writer at a time.
	var writeMu sync.Mutex
	if err := conn.WriteMessage(websocket.TextMessage, registration); err != nil {
		return exitRuntime, fmt.Errorf("registration failed: %w", err)
	}
	log.Info("Registered with coordination server", "service", protocol.ServiceMutualPlaylist, "url", config.ServerURL)

	client := spotify.NewClient(rate.Limit(config.RequestsPerSecond), config.Burst)

	// Unblock the read loop when a shutdown signal arrives.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	// 4. Request loop. Each computation runs in its own goroutine so a
	// long build never delays the next request.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Stopping worker...")
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection lost: %w", err)
		}

		msg, err := protocol.Parse(raw)
		if err != nil {
			log.Warn("Dropping unparseable frame", "error", err)
			continue
		}
		if msg.Type != protocol.TypeMakeMutualPlaylist {
			log.Info("Ignoring frame", "type", msg.Type)
			continue
		}

		go func(msg protocol.Message) {
			computeCtx, cancel := context.WithTimeout(ctx, config.ComputeTimeout)
			defer cancel()

			result, err := client.BuildMutualPlaylist(computeCtx, msg.Strings)
			if err != nil {
				log.Error("Mutual playlist build failed", "error", err)
				return
			}
			log.Info("Mutual playlist built",
				"playlist_id", result.PlaylistID,
				"tracks", result.TrackCount)

			document, err := json.Marshal(result)
			if err != nil {
				log.Error("Could not encode result", "error", err)
				return
			}
			reply, err := protocol.Result(msg.Token, document)
			if err != nil {
				log.Error("Could not encode result frame", "error", err)
				return
			}

			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				log.Error("Could not deliver result", "error", err)
			}
		}(msg)
	}
}

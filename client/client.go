// The client is a terminal companion to the browser front end: it opens a
// session on the user endpoint with an authorization code, optionally
// joins a group, and prints every group snapshot the server pushes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"musink/protocol"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"MUSINK_USER_URL,default=ws://localhost:8080"`
	AuthCode  string `env:"MUSINK_AUTH_CODE,required=true"`
	// Group id to join after the session opens; negative means stay put.
	JoinGroup int    `env:"MUSINK_JOIN_GROUP,default=-1"`
	LogLevel  string `env:"LOG_LEVEL,required=true"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the connection lifecycle, configuration loading, and the
// snapshot reception loop. This pattern ensures clean resource management
// and error propagation.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Establish connection to the user endpoint.
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	// 4. Open a session with the authorization code.
	if err := send(conn, protocol.Message{Type: protocol.TypeNewClient, Strings: []string{config.AuthCode}}); err != nil {
		return exitRuntime, fmt.Errorf("session open failed: %w", err)
	}
	if config.JoinGroup >= 0 {
		if err := send(conn, protocol.Message{Type: protocol.TypeJoinGroup, ID: &config.JoinGroup, Code: config.AuthCode}); err != nil {
			return exitRuntime, fmt.Errorf("join failed: %w", err)
		}
	}

	log.Info("Connected, listening for group updates (Ctrl+C to quit)", "url", config.ServerURL)

	// Unblock the read loop when a shutdown signal arrives.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	// 5. Snapshot reception loop.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Stopping client...")
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection lost: %w", err)
		}

		msg, err := protocol.Parse(raw)
		if err != nil {
			log.Warn("Dropping unparseable frame", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeAdvertisingGroups:
			var views []protocol.GroupView
			if err := json.Unmarshal(msg.Data, &views); err != nil {
				log.Warn("Malformed snapshot", "error", err)
				continue
			}
			for _, view := range views {
				color.Green.Printf("group %d: [%s]\n", view.ID, strings.Join(view.Clients, ", "))
			}
		case protocol.TypeError:
			color.Red.Printf("server error: %s\n", strings.Join(msg.Strings, "; "))
		default:
			log.Info("Received frame", "type", msg.Type)
		}
	}
}

func send(conn *websocket.Conn, msg protocol.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

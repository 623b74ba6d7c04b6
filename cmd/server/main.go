package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/time/rate"

	"musink/auth"
	"musink/internal"
	"musink/observability"
	"musink/runtime"
	"musink/runtime/workers"
	"musink/server"
	"musink/spotify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so deferred cleanup always executes and
// the entry point stays testable.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Shared state: the two coordination registries and the broker
	sessions := runtime.NewSessionRegistry()
	groups := runtime.NewGroupRegistry()
	coordinator := runtime.NewCoordinator(log, sessions, groups)
	broker := runtime.NewWorkerBroker(log)

	// 3. Provider adapters & correlation tokens
	exchanger := spotify.NewExchanger(spotify.Credentials{
		ClientID:     config.SpotifyClientID,
		ClientSecret: config.SpotifyClientSecret,
		RedirectURI:  config.SpotifyRedirectURI,
	}, config.AdapterTimeout)
	content := spotify.NewClient(rate.Limit(config.SpotifyRequestsPerSecond), config.SpotifyBurst)
	correlator := auth.NewCorrelator([]byte(config.CorrelationKey), config.CorrelationTTL)

	// 4. Dispatch & listeners under supervision
	monitor := observability.NewMonitor(log)
	router := server.NewRouter(log, coordinator, broker, exchanger, content, correlator, monitor, config.AdapterTimeout)

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(server.NewUserEndpoint(log, config.UserAddr, router, config.SendBufferSize))
	sup.Add(server.NewWorkerEndpoint(log, config.WorkerAddr, router, config.SendBufferSize))
	sup.Add(server.NewWebEndpoint(log, config.WebAddr, exchanger, correlator, monitor))
	sup.Add(monitor)

	// 5. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting coordination server",
		"users", config.UserAddr,
		"workers", config.WorkerAddr,
		"web", config.WebAddr)

	// 6. Run blocks until the signal arrives and every listener drains.
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}

package internal

import "time"

// Config is the coordination server's environment. Provider credentials
// are required: without them neither adapter can do anything useful.
type Config struct {
	UserAddr   string `env:"USER_ADDR,default=localhost:8080"`
	WorkerAddr string `env:"WORKER_ADDR,default=localhost:8082"`
	WebAddr    string `env:"WEB_ADDR,default=localhost:8081"`

	LogLevel        string        `env:"LOG_LEVEL,required=true"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,default=32"`
	AdapterTimeout  time.Duration `env:"ADAPTER_TIMEOUT,default=10s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID,required=true"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET,required=true"`
	SpotifyRedirectURI  string `env:"SPOTIFY_REDIRECT_URI,required=true"`

	// Rate limiting for content-API calls, shared across sessions.
	SpotifyRequestsPerSecond float64 `env:"SPOTIFY_REQUESTS_PER_SECOND,default=10"`
	SpotifyBurst             int     `env:"SPOTIFY_BURST,default=20"`

	CorrelationKey string        `env:"CORRELATION_KEY,required=true"`
	CorrelationTTL time.Duration `env:"CORRELATION_TTL,default=5m"`
}

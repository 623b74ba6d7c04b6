package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Endpoints of a running coordination server. Scenarios are skipped
	// when USER_URL is unset, so `go test ./...` stays green locally.
	UserURL   string `envconfig:"MUSINK_USER_URL"`
	WorkerURL string `envconfig:"MUSINK_WORKER_URL"`
	WebURL    string `envconfig:"MUSINK_WEB_URL"`
	// E2E_DEBUG_JSON allows dumping full frame bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours      bool          `envconfig:"E2E_COLOURS" default:"true"`
	ReplyTimeout time.Duration `envconfig:"E2E_REPLY_TIMEOUT" default:"5s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

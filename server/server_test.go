package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"musink/auth"
	"musink/observability"
)

type stubProvider struct{}

func (stubProvider) AuthURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func TestWebEndpoint_Login_RedirectsWithSignedState(t *testing.T) {
	req := require.New(t)
	correlator := auth.NewCorrelator([]byte("web-test-key"), time.Minute)
	endpoint := NewWebEndpoint(slog.Default(), "unused", stubProvider{}, correlator, observability.NewMonitor(slog.Default()))

	recorder := httptest.NewRecorder()
	endpoint.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/login", nil))

	// Then the client is redirected to the provider with a state we can verify
	req.Equal(http.StatusFound, recorder.Code)
	location, err := recorder.Result().Location()
	req.NoError(err)
	req.Equal("provider.example", location.Host)
	req.NoError(correlator.VerifyState(location.Query().Get("state")))
}

func TestWebEndpoint_Liveness(t *testing.T) {
	req := require.New(t)
	correlator := auth.NewCorrelator([]byte("web-test-key"), time.Minute)
	endpoint := NewWebEndpoint(slog.Default(), "unused", stubProvider{}, correlator, observability.NewMonitor(slog.Default()))

	recorder := httptest.NewRecorder()
	endpoint.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/test", nil))

	req.Equal(http.StatusOK, recorder.Code)
	var body map[string]string
	req.NoError(json.Unmarshal(recorder.Body.Bytes(), &body))
	req.Equal("ok", body["status"])
}

func TestWebEndpoint_Stats(t *testing.T) {
	req := require.New(t)
	correlator := auth.NewCorrelator([]byte("web-test-key"), time.Minute)
	monitor := observability.NewMonitor(slog.Default())
	monitor.SessionOpened()
	monitor.JoinApplied()
	endpoint := NewWebEndpoint(slog.Default(), "unused", stubProvider{}, correlator, monitor)

	recorder := httptest.NewRecorder()
	endpoint.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/stats", nil))

	req.Equal(http.StatusOK, recorder.Code)
	var stats observability.Stats
	req.NoError(json.Unmarshal(recorder.Body.Bytes(), &stats))
	req.EqualValues(1, stats.SessionsActive)
	req.EqualValues(1, stats.JoinsApplied)
}

package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"musink/errors"
)

func newTestClient(serverURL string) *Client {
	client := NewClient(rate.Inf, 1)
	client.baseURL = serverURL
	return client
}

func TestClient_Playlists(t *testing.T) {
	req := require.New(t)

	// Given a provider returning a playlist document
	document := `{"items":[{"name":"Focus"},{"name":"Gym"}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("/me/playlists", r.URL.Path)
		req.Equal("Bearer tok-alice", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(document))
	}))
	defer server.Close()

	// When fetching playlists
	got, err := newTestClient(server.URL).Playlists(context.Background(), "tok-alice")

	// Then the document passes through untouched
	req.NoError(err)
	req.JSONEq(document, string(got))
}

func TestClient_Playlists_ProviderError(t *testing.T) {
	req := require.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Playlists(context.Background(), "stale")

	req.ErrorIs(err, errors.ErrAdapterFailure)
}

func TestClient_TopTracks_DeduplicatesAcrossRanges(t *testing.T) {
	req := require.New(t)

	// Given overlapping pages for the three time ranges
	pages := map[string][]string{
		"short_term":  {"t1", "t2"},
		"medium_term": {"t2", "t3"},
		"long_term":   {"t3", "t1"},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := pages[r.URL.Query().Get("time_range")]
		items := make([]map[string]string, 0, len(ids))
		for _, id := range ids {
			items = append(items, map[string]string{"id": id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	defer server.Close()

	tracks, err := newTestClient(server.URL).TopTracks(context.Background(), "tok")

	// Then ids are unique with first-seen order preserved
	req.NoError(err)
	req.Equal([]string{"t1", "t2", "t3"}, tracks)
}

func TestClient_AddTracks_Batches(t *testing.T) {
	req := require.New(t)

	var mu sync.Mutex
	var batches [][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URIs []string `json:"uris"`
		}
		req.NoError(json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		batches = append(batches, body.URIs)
		mu.Unlock()
	}))
	defer server.Close()

	// Given more tracks than fit in one provider call
	ids := make([]string, 45)
	for i := range ids {
		ids[i] = "t" + string(rune('0'+i%10))
	}

	err := newTestClient(server.URL).AddTracks(context.Background(), "tok", "pl-1", ids)

	// Then they arrive in order as 20/20/5
	req.NoError(err)
	req.Len(batches, 3)
	req.Len(batches[0], 20)
	req.Len(batches[1], 20)
	req.Len(batches[2], 5)
	req.True(strings.HasPrefix(batches[0][0], "spotify:track:"))
}

func TestClient_BuildMutualPlaylist(t *testing.T) {
	req := require.New(t)

	topTracks := map[string][]string{
		"Bearer tok-a": {"t1", "t2", "t3"},
		"Bearer tok-b": {"t2", "t3", "t4"},
	}

	var mu sync.Mutex
	var addedURIs []string
	var followers []string
	collaborative := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		switch {
		case r.URL.Path == "/me/top/tracks":
			ids := topTracks[auth]
			items := make([]map[string]string, 0, len(ids))
			for _, id := range ids {
				items = append(items, map[string]string{"id": id})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"items": items})

		case r.URL.Path == "/me":
			req.Equal("Bearer tok-a", auth)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "owner-a"})

		case r.Method == http.MethodPost && r.URL.Path == "/users/owner-a/playlists":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "pl-1"})

		case r.Method == http.MethodPost && r.URL.Path == "/playlists/pl-1/tracks":
			var body struct {
				URIs []string `json:"uris"`
			}
			req.NoError(json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			addedURIs = append(addedURIs, body.URIs...)
			mu.Unlock()

		case r.Method == http.MethodPut && r.URL.Path == "/playlists/pl-1":
			mu.Lock()
			collaborative = true
			mu.Unlock()

		case r.Method == http.MethodPut && r.URL.Path == "/playlists/pl-1/followers":
			mu.Lock()
			followers = append(followers, auth)
			mu.Unlock()

		default:
			t.Errorf("unexpected call: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	// When building a mutual playlist for two members
	result, err := newTestClient(server.URL).BuildMutualPlaylist(context.Background(), []string{"tok-a", "tok-b"})

	// Then the playlist holds the intersection on the first member's
	// account and the second member follows it
	req.NoError(err)
	req.Equal("owner-a", result.OwnerID)
	req.Equal("pl-1", result.PlaylistID)
	req.Equal(2, result.TrackCount)
	req.Equal([]string{"spotify:track:t2", "spotify:track:t3"}, addedURIs)
	req.True(collaborative)
	req.Equal([]string{"Bearer tok-b"}, followers)
}

func TestClient_BuildMutualPlaylist_NeedsTwoTokens(t *testing.T) {
	req := require.New(t)

	_, err := newTestClient("http://unused").BuildMutualPlaylist(context.Background(), []string{"tok-a"})

	req.Error(err)
}

func TestExchanger_AuthURL(t *testing.T) {
	req := require.New(t)
	exchanger := NewExchanger(Credentials{
		ClientID:    "client-id",
		RedirectURI: "http://localhost:8081/callback",
	}, 0)

	url := exchanger.AuthURL("signed-state")

	req.Contains(url, "accounts.spotify.com/authorize")
	req.Contains(url, "client_id=client-id")
	req.Contains(url, "state=signed-state")
	req.Contains(url, "user-top-read")
}

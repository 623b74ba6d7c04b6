package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"musink/errors"
)

const defaultBaseURL = "https://api.spotify.com/v1"

// Client performs authenticated calls against the content API on behalf
// of whatever access token it is handed; it holds no credentials of its
// own. Calls share one rate limiter so a burst of fan-out work cannot
// trip the provider's quota.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

func NewClient(requestsPerSecond rate.Limit, burst int) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(requestsPerSecond, burst),
		baseURL:    defaultBaseURL,
	}
}

// do performs one authenticated request. A non-2xx status or transport
// failure is reported as ErrAdapterFailure so callers can map it onto a
// single error reply.
func (c *Client) do(ctx context.Context, accessToken, method, endpoint string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrAdapterFailure, err)
	}

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encoding request body: %v", errors.ErrAdapterFailure, err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrAdapterFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrAdapterFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: status %d", errors.ErrAdapterFailure, method, endpoint, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: decoding response: %v", errors.ErrAdapterFailure, err)
		}
	}
	return nil
}

// Playlists fetches the current user's playlists. The document is passed
// through to the requesting client verbatim: the engine never interprets
// it, so there is nothing to gain from decoding it here.
func (c *Client) Playlists(ctx context.Context, accessToken string) (json.RawMessage, error) {
	var document json.RawMessage
	if err := c.do(ctx, accessToken, http.MethodGet, "/me/playlists?limit=50", nil, &document); err != nil {
		return nil, err
	}
	return document, nil
}

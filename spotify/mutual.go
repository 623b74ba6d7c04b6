package spotify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/samber/lo"
)

// timeRanges mirrors the provider's three top-track windows; pulling all
// three widens the pool before intersecting.
var timeRanges = []string{"short_term", "medium_term", "long_term"}

// addTracksChunk is the provider's per-call limit we batch track adds by.
const addTracksChunk = 20

type user struct {
	ID string `json:"id"`
}

type topTracksPage struct {
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
}

type createdPlaylist struct {
	ID string `json:"id"`
}

// MutualResult describes the playlist the worker built, echoed back to
// the requesting session.
type MutualResult struct {
	OwnerID    string `json:"owner_id"`
	PlaylistID string `json:"playlist_id"`
	TrackCount int    `json:"track_count"`
}

// Me returns the id of the user a token belongs to.
func (c *Client) Me(ctx context.Context, accessToken string) (string, error) {
	var u user
	if err := c.do(ctx, accessToken, http.MethodGet, "/me", nil, &u); err != nil {
		return "", err
	}
	return u.ID, nil
}

// TopTracks collects the user's top track ids across all three time
// ranges, deduplicated, order preserved.
func (c *Client) TopTracks(ctx context.Context, accessToken string) ([]string, error) {
	var ids []string
	for _, timeRange := range timeRanges {
		endpoint := fmt.Sprintf("/me/top/tracks?limit=50&time_range=%s", timeRange)
		var page topTracksPage
		if err := c.do(ctx, accessToken, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item.ID != "" {
				ids = append(ids, item.ID)
			}
		}
	}
	return lo.Uniq(ids), nil
}

// CreatePlaylist creates a private playlist on the owner's account.
func (c *Client) CreatePlaylist(ctx context.Context, accessToken, ownerID, name, description string) (string, error) {
	endpoint := fmt.Sprintf("/users/%s/playlists", ownerID)
	body := map[string]any{"name": name, "public": false, "description": description}
	var playlist createdPlaylist
	if err := c.do(ctx, accessToken, http.MethodPost, endpoint, body, &playlist); err != nil {
		return "", err
	}
	return playlist.ID, nil
}

// AddTracks appends track ids to a playlist in provider-sized batches.
func (c *Client) AddTracks(ctx context.Context, accessToken, playlistID string, trackIDs []string) error {
	for start := 0; start < len(trackIDs); start += addTracksChunk {
		end := min(start+addTracksChunk, len(trackIDs))
		uris := lo.Map(trackIDs[start:end], func(id string, _ int) string {
			return "spotify:track:" + id
		})
		endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
		if err := c.do(ctx, accessToken, http.MethodPost, endpoint, map[string]any{"uris": uris}, nil); err != nil {
			return err
		}
	}
	return nil
}

// MakeCollaborative flips the playlist to collaborative so every group
// member can edit it.
func (c *Client) MakeCollaborative(ctx context.Context, accessToken, playlistID string) error {
	endpoint := fmt.Sprintf("/playlists/%s", playlistID)
	body := map[string]any{"collaborative": true, "public": false}
	return c.do(ctx, accessToken, http.MethodPut, endpoint, body, nil)
}

// FollowPlaylist subscribes a user to the playlist.
func (c *Client) FollowPlaylist(ctx context.Context, accessToken, playlistID string) error {
	endpoint := fmt.Sprintf("/playlists/%s/followers", playlistID)
	return c.do(ctx, accessToken, http.MethodPut, endpoint, map[string]any{"public": false}, nil)
}

// BuildMutualPlaylist runs the whole computation: intersect every
// member's top tracks, create the playlist on the first member's
// account, fill it, make it collaborative, and have the remaining
// members follow it.
func (c *Client) BuildMutualPlaylist(ctx context.Context, accessTokens []string) (MutualResult, error) {
	if len(accessTokens) < 2 {
		return MutualResult{}, fmt.Errorf("need at least two access tokens, got %d", len(accessTokens))
	}

	common, err := c.TopTracks(ctx, accessTokens[0])
	if err != nil {
		return MutualResult{}, err
	}
	for _, token := range accessTokens[1:] {
		tracks, err := c.TopTracks(ctx, token)
		if err != nil {
			return MutualResult{}, err
		}
		common = lo.Filter(common, func(id string, _ int) bool {
			return lo.Contains(tracks, id)
		})
	}

	ownerToken := accessTokens[0]
	ownerID, err := c.Me(ctx, ownerToken)
	if err != nil {
		return MutualResult{}, err
	}
	playlistID, err := c.CreatePlaylist(ctx, ownerToken, ownerID, "MutualPlaylist", "MutualPlaylist")
	if err != nil {
		return MutualResult{}, err
	}
	if err := c.AddTracks(ctx, ownerToken, playlistID, common); err != nil {
		return MutualResult{}, err
	}
	if err := c.MakeCollaborative(ctx, ownerToken, playlistID); err != nil {
		return MutualResult{}, err
	}
	for _, token := range accessTokens[1:] {
		if err := c.FollowPlaylist(ctx, token, playlistID); err != nil {
			return MutualResult{}, err
		}
	}

	return MutualResult{OwnerID: ownerID, PlaylistID: playlistID, TrackCount: len(common)}, nil
}

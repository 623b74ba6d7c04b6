// Package spotify wraps the two third-party network surfaces the
// coordination engine treats as opaque collaborators: the identity
// provider's token endpoints and the content API. It also carries the
// playlist-construction calls used by the mutual playlist worker.
//
// API shapes follow https://developer.spotify.com/documentation/web-api/reference/
package spotify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"musink/domain"
	"musink/errors"
)

const (
	authURL  = "https://accounts.spotify.com/authorize"
	tokenURL = "https://accounts.spotify.com/api/token"
)

// Credentials identifies this application to the provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Exchanger implements the authorization-code-for-token exchange.
// Every call is bounded by the configured timeout so a slow provider
// converts into a delivery failure instead of a stalled connection.
type Exchanger struct {
	config  *oauth2.Config
	timeout time.Duration
}

func NewExchanger(creds Credentials, timeout time.Duration) *Exchanger {
	return &Exchanger{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes: []string{
				"user-read-private",
				"user-read-email",
				"user-top-read",
				"playlist-read-private",
				"playlist-modify-private",
				"playlist-modify-public",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		timeout: timeout,
	}
}

// AuthURL returns the provider authorize URL the login redirect points
// at, carrying the signed state parameter.
func (e *Exchanger) AuthURL(state string) string {
	return e.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token bundle.
func (e *Exchanger) Exchange(ctx context.Context, authCode string) (domain.TokenBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	token, err := e.config.Exchange(ctx, authCode)
	if err != nil {
		return domain.TokenBundle{}, fmt.Errorf("%w: token exchange: %v", errors.ErrAdapterFailure, err)
	}
	return toBundle(token), nil
}

// Refresh trades a refresh token for a fresh bundle. The provider may or
// may not rotate the refresh token; the caller stores whatever comes back.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (domain.TokenBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	source := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return domain.TokenBundle{}, fmt.Errorf("%w: token refresh: %v", errors.ErrAdapterFailure, err)
	}
	bundle := toBundle(token)
	if bundle.RefreshToken == "" {
		bundle.RefreshToken = refreshToken
	}
	return bundle, nil
}

func toBundle(token *oauth2.Token) domain.TokenBundle {
	return domain.TokenBundle{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
}

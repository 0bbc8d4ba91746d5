// Package api is a thin binding to the Home Connect cloud REST API. It
// covers only the calls the integration makes.
package api

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.home-connect.com/api"

// OAuth2 endpoints of the Home Connect cloud.
const (
	AuthURL  = "https://api.home-connect.com/security/oauth/authorize"
	TokenURL = "https://api.home-connect.com/security/oauth/token"
)

// Endpoint is the Home Connect OAuth2 endpoint.
var Endpoint = oauth2.Endpoint{AuthURL: AuthURL, TokenURL: TokenURL}

// TokenSaver persists a refreshed token.
type TokenSaver func(token *oauth2.Token) error

// AuthOption configures a ConfigEntryAuth.
type AuthOption func(*ConfigEntryAuth)

// WithBaseURL points the client at another API root, e.g. the simulator.
func WithBaseURL(url string) AuthOption {
	return func(a *ConfigEntryAuth) { a.baseURL = url }
}

// ConfigEntryAuth is an authenticated API session for one config entry.
// Tokens are refreshed by x/oauth2; every new token is handed to the saver
// so the entry keeps a current refresh token.
type ConfigEntryAuth struct {
	baseURL string
	client  *http.Client

	mu         sync.RWMutex
	appliances []*Appliance
}

// NewConfigEntryAuth builds a session from the OAuth2 config and the token
// stored in the entry. ctx carries the HTTP client used for refreshes and
// must outlive the session.
func NewConfigEntryAuth(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token, save TokenSaver, opts ...AuthOption) *ConfigEntryAuth {
	ts := &persistingTokenSource{
		base: oauth2.ReuseTokenSource(token, cfg.TokenSource(ctx, token)),
		last: token.AccessToken,
		save: save,
	}
	a := &ConfigEntryAuth{
		baseURL: DefaultBaseURL,
		client:  oauth2.NewClient(ctx, ts),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type persistingTokenSource struct {
	base oauth2.TokenSource
	save TokenSaver

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last && s.save != nil {
		if err := s.save(token); err != nil {
			return nil, err
		}
	}
	s.last = token.AccessToken
	return token, nil
}

// TokenFromData reads a token stored in entry data under "token".
func TokenFromData(data map[string]any) (*oauth2.Token, bool) {
	raw, ok := data["token"].(map[string]any)
	if !ok {
		return nil, false
	}
	token := &oauth2.Token{}
	token.AccessToken, _ = raw["access_token"].(string)
	token.RefreshToken, _ = raw["refresh_token"].(string)
	token.TokenType, _ = raw["token_type"].(string)
	if expiry, ok := raw["expiry"].(string); ok {
		_ = token.Expiry.UnmarshalText([]byte(expiry))
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, false
	}
	return token, true
}

// TokenData is the inverse of TokenFromData.
func TokenData(token *oauth2.Token) map[string]any {
	data := map[string]any{
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
		"token_type":    token.TokenType,
	}
	if !token.Expiry.IsZero() {
		if b, err := token.Expiry.MarshalText(); err == nil {
			data["expiry"] = string(b)
		}
	}
	return data
}

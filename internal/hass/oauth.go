package hass

import (
	"context"
	"fmt"

	"homelink/internal/schema"
	"homelink/pkg/host"
	"homelink/pkg/plugin"

	"golang.org/x/oauth2"
)

// applicationCredentials is the OAuth2 part of an integration's YAML block.
// Other keys in the block are ignored here.
type applicationCredentials struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	AuthURL      string `yaml:"auth_url" validate:"omitempty,url"`
	TokenURL     string `yaml:"token_url" validate:"omitempty,url"`
	RedirectURL  string `yaml:"redirect_url" validate:"omitempty,url"`
}

// OAuth2Implementation builds the oauth2.Config for entry from the
// application credentials under the integration's YAML block and the
// endpoint the integration declares. auth_url and token_url override the
// declared endpoint.
func (h *Hass) OAuth2Implementation(_ context.Context, entry *host.ConfigEntry) (*oauth2.Config, error) {
	if h.config == nil {
		return nil, fmt.Errorf("%s: %w", entry.Domain, host.ErrNoOAuth2Implementation)
	}

	var creds applicationCredentials
	found, err := h.config.Section(entry.Domain, &creds)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s credentials: %w", entry.Domain, err)
	}
	if !found || creds.ClientID == "" {
		return nil, fmt.Errorf("%s: %w", entry.Domain, host.ErrNoOAuth2Implementation)
	}
	if err := schema.Check(&creds); err != nil {
		return nil, fmt.Errorf("invalid %s credentials: %w", entry.Domain, err)
	}

	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURL,
	}
	if integration, ok := h.integration(entry.Domain); ok {
		if provider, ok := integration.(plugin.OAuth2Provider); ok {
			cfg.Endpoint = provider.OAuth2Endpoint()
			cfg.Scopes = provider.OAuth2Scopes()
		}
	}
	if creds.AuthURL != "" {
		cfg.Endpoint.AuthURL = creds.AuthURL
	}
	if creds.TokenURL != "" {
		cfg.Endpoint.TokenURL = creds.TokenURL
	}
	if cfg.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf("%s has no token endpoint: %w", entry.Domain, host.ErrNoOAuth2Implementation)
	}
	return cfg, nil
}

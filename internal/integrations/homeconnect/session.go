package homeconnect

import (
	"context"
	"fmt"

	"homelink/internal/integrations/homeconnect/api"
	"homelink/pkg/host"

	"golang.org/x/oauth2"
)

// Appliance is the vendor surface the services and the refresh use.
type Appliance interface {
	Info() api.ApplianceInfo
	Initialize(ctx context.Context) error
	SetSetting(ctx context.Context, key string, value any, unit string) error
	SetOptionsActiveProgram(ctx context.Context, key string, value any, unit string) error
	SetOptionsSelectedProgram(ctx context.Context, key string, value any, unit string) error
	SelectProgram(ctx context.Context, program string, options []api.Option) error
	StartProgram(ctx context.Context, program string, options []api.Option) error
	ExecuteCommand(ctx context.Context, command string) error
}

// Session is an authenticated account.
type Session interface {
	GetAppliances(ctx context.Context) ([]Appliance, error)
}

// SessionFactory builds the session for an entry.
type SessionFactory func(ctx context.Context, cfg *oauth2.Config, entry *host.ConfigEntry, save api.TokenSaver) (Session, error)

type cloudSession struct {
	auth *api.ConfigEntryAuth
}

func (s cloudSession) GetAppliances(ctx context.Context) ([]Appliance, error) {
	list, err := s.auth.GetAppliances(ctx)
	if err != nil {
		return nil, err
	}
	appliances := make([]Appliance, len(list))
	for i, a := range list {
		appliances[i] = a
	}
	return appliances, nil
}

// cloudSessionFactory returns a factory for the real API at baseURL.
func cloudSessionFactory(baseURL string) SessionFactory {
	return func(ctx context.Context, cfg *oauth2.Config, entry *host.ConfigEntry, save api.TokenSaver) (Session, error) {
		token, ok := api.TokenFromData(entry.Data)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoToken, entry.EntryID)
		}
		var opts []api.AuthOption
		if baseURL != "" {
			opts = append(opts, api.WithBaseURL(baseURL))
		}
		return cloudSession{auth: api.NewConfigEntryAuth(ctx, cfg, token, save, opts...)}, nil
	}
}

package host

import "errors"

// Errors returned by host collaborators. Use errors.Is to check for them.
var (
	// ErrInvalidServiceData is returned when a payload fails its service schema.
	ErrInvalidServiceData = errors.New("host: invalid service data")

	// ErrServiceNotFound is returned when calling an unregistered service.
	ErrServiceNotFound = errors.New("host: service not found")

	// ErrEntryNotFound is returned for an unknown config entry ID.
	ErrEntryNotFound = errors.New("host: config entry not found")

	// ErrAlreadyConfigured aborts a config flow for a unique ID that already
	// has an entry.
	ErrAlreadyConfigured = errors.New("host: already configured")

	// ErrNoFlowHandler is returned by FlowInit when the integration cannot
	// handle the requested source.
	ErrNoFlowHandler = errors.New("host: integration has no flow handler")

	// ErrUniqueIDConflict aborts an entity migration that would collide with
	// another entity's unique ID.
	ErrUniqueIDConflict = errors.New("host: unique id already in use")

	// ErrNoOAuth2Implementation is returned when no application credentials
	// are configured for a domain.
	ErrNoOAuth2Implementation = errors.New("host: no oauth2 implementation")
)

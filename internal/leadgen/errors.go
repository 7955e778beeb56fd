package leadgen

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// ConfigErrorKind classifies configuration failures that abort a run before
// it starts.
type ConfigErrorKind string

// Configuration failure kinds.
const (
	// ConfigMissingSource means no industry/location was given and the owner
	// has no active lead source to fall back on.
	ConfigMissingSource ConfigErrorKind = "missing_source"
	// ConfigMissingProvider means a required provider credential is absent.
	ConfigMissingProvider ConfigErrorKind = "missing_provider"
	// ConfigInvalidRequest means the request itself is malformed.
	ConfigInvalidRequest ConfigErrorKind = "invalid_request"
)

// ConfigError is returned by Prepare when a run cannot start.
type ConfigError struct {
	Kind    ConfigErrorKind
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("leadgen: %s: %s", e.Kind, e.Message)
}

func newConfigError(kind ConfigErrorKind, format string, args ...any) error {
	return &ConfigError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsConfigError extracts a *ConfigError from err's chain.
func AsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

var (
	// ErrLeadNotFound is returned when a lead does not exist for the owner.
	ErrLeadNotFound = eris.New("lead not found")
	// ErrInvalidTransition is returned for a disallowed status change.
	ErrInvalidTransition = eris.New("invalid lead status transition")
)

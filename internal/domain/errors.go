package domain

import "fmt"

// ConfigurationError marks an optional tier capability as unavailable. The
// coordinator disables the tier with a warning and keeps serving queries with
// the reduced set.
type ConfigurationError struct {
	Tier   Tier
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("tier %s unavailable: %s", e.Tier, e.Reason)
}

// IsConfigurationError reports whether err is a tier-capability failure.
func IsConfigurationError(err error) bool {
	_, ok := err.(*ConfigurationError)
	return ok
}

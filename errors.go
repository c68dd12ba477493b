package meshlink

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDonors is returned when an active interface marker has no
	// donor vertices anywhere in the process group. This normally
	// indicates mismatched interface definitions rather than a
	// transient fault.
	ErrNoDonors = errors.New("no donor vertices available for active interface")

	// ErrInsufficientDonors is returned when the requested neighbor
	// count exceeds the total number of donor vertices across all
	// ranks. The result is never truncated or padded.
	ErrInsufficientDonors = errors.New("requested neighbor count exceeds available donors")
)

// ConfigError reports an interface misconfiguration, identified by the
// offending marker pair. Computation for that pair aborts; there is no
// local recovery.
//
// The underlying error can be accessed via errors.Unwrap.
type ConfigError struct {
	DonorMarker  string
	TargetMarker string
	cause        error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("interface %q -> %q: %v", e.DonorMarker, e.TargetMarker, e.cause)
}

func (e *ConfigError) Unwrap() error { return e.cause }

func configError(donor, target string, cause error) *ConfigError {
	return &ConfigError{DonorMarker: donor, TargetMarker: target, cause: cause}
}

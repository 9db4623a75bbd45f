package measure

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is the kind shared by every fatal configuration failure
	ErrConfiguration = errors.New("configuration error")

	ErrMissingDependency     = errors.New("missing measure dependency")
	ErrMissingMeasurementKey = errors.New("missing measurement key")
	ErrDuplicateMeasure      = errors.New("duplicate measure")
	ErrCycle                 = errors.New("measure dependency cycle")
	ErrEmptySolution         = errors.New("no resolvable subtask in solution")
	ErrNotReset              = errors.New("measure updated before reset")
)

// ConfigError reports a broken measure wiring. It is never retried.
type ConfigError struct {
	Kind    error
	Measure string
	Msg     string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", ErrConfiguration, e.Kind)
	if e.Measure != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Measure)
	}
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	return msg
}

// Unwrap exposes both ErrConfiguration and the specific kind to errors.Is.
func (e *ConfigError) Unwrap() []error { return []error{ErrConfiguration, e.Kind} }

// Configf builds a ConfigError of the given kind for a measure.
func Configf(kind error, measure string, format string, args ...any) error {
	return &ConfigError{Kind: kind, Measure: measure, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a fatal configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

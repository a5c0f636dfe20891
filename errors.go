package pulsecalc

import (
	"errors"
	"fmt"

	"github.com/jpalmerr/pulsecalc/internal/eval"
)

var (
	// ErrConfiguration is wrapped by every [ConfigurationError]. A connection
	// whose address fails to configure is never established.
	ErrConfiguration = errors.New("calc configuration error")

	// ErrEvaluation is the sentinel wrapped by expression evaluation
	// failures. Workers log these and keep their previous value; they never
	// reach channel listeners.
	ErrEvaluation = eval.ErrEvaluation

	// ErrClosed is returned by [Registry.Connect] after [Registry.Close].
	ErrClosed = errors.New("registry closed")
)

// ConfigurationError reports a malformed calc address or a calculation that
// cannot be built from it.
type ConfigurationError struct {
	// Address is the address as given by the caller.
	Address string

	// Reason describes what is wrong with it.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid calc address %q: %s", e.Address, e.Reason)
}

// Unwrap returns [ErrConfiguration].
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

func configErrorf(address, format string, args ...any) error {
	return &ConfigurationError{Address: address, Reason: fmt.Sprintf(format, args...)}
}

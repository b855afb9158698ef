package arae

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNonFinite is returned when a phase computes a NaN
	// or infinite loss.
	// No optimizer is stepped for that phase.
	ErrNonFinite = errors.New("non-finite loss")

	// ErrTerminated is returned when a Supervisor is asked
	// to run a context after training has ended.
	ErrTerminated = errors.New("training terminated")

	// ErrEmptyDataset is returned by iterators which cannot
	// produce a single batch.
	ErrEmptyDataset = errors.New("empty dataset")
)

// A ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (c *ConfigError) Error() string {
	return fmt.Sprintf("config: %s=%v: %s", c.Field, c.Value, c.Reason)
}

// A DecodeModeError reports an unknown decode mode.
type DecodeModeError struct {
	Mode string
}

func (d *DecodeModeError) Error() string {
	return fmt.Sprintf("unknown decode mode: %q", d.Mode)
}

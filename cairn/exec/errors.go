package exec

import "errors"

// ErrIgnore is the per-record signal returned by a Processor to drop a
// record without aborting the scan. It never surfaces past the
// Iterator.
var ErrIgnore = errors.New("ignore")

// SetupError is a configuration or precondition failure detected
// before any iterable executes (e.g. a negative LIMIT).
type SetupError struct {
	Msg string
}

func (e *SetupError) Error() string { return e.Msg }

package cli

import (
	"errors"
	"strconv"
)

// ExitError ends the process with Code. Err, when set, is printed first.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "exit status " + strconv.Itoa(e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Common CLI errors
var (
	ErrNoMockFiles = errors.New("no mock files given (pass collection files or --openapi)")
)

package export

import (
	"errors"
	"fmt"
)

var (
	ErrNoSegments  = errors.New("no video segments were created successfully")
	ErrEmptyOutput = errors.New("output file was not created or is empty")
)

// InputError is a request the client got wrong; handlers answer it with 400.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func Invalid(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

func IsInputError(err error) bool {
	var inputErr *InputError
	return errors.As(err, &inputErr)
}

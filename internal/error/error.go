package error

import (
	"fmt"
	"runtime/debug"
)

// MyError carries a failure detected by the bench driver together with the
// values that explain it.
type MyError struct {
	Inner      error
	Message    []byte
	StackTrace []byte
	Misc       map[string]any
}

func Wrap(err error, message string, stackTrace []byte, misc map[string]any) *MyError {
	return &MyError{
		Inner:      err,
		Message:    []byte(message),
		StackTrace: stackTrace,
		Misc:       misc,
	}
}

// WrapHere is Wrap with the caller's stack.
func WrapHere(err error, message string, misc map[string]any) *MyError {
	return Wrap(err, message, debug.Stack(), misc)
}

func (e *MyError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Inner)
	}
	return string(e.Message)
}

func (e *MyError) Unwrap() error {
	return e.Inner
}

package httperror

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a failure that already carries the response status.
type StatusError struct {
	Code int
	Err  error
}

func NewStatusError(code int, err error) *StatusError {
	return &StatusError{Code: code, Err: err}
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// HandlerFunc is an http handler that may fail.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP records a returned error on the request state so the error middleware
// renders it. Without the middleware the error is written as plain text.
func (fn HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := fn(w, r)
	if err == nil {
		return
	}

	if state := FromContext(r.Context()); state != nil {
		state.Fail(err)
		return
	}

	code := http.StatusInternalServerError
	var se *StatusError
	if errors.As(err, &se) && se.Code >= http.StatusBadRequest {
		code = se.Code
	}
	http.Error(w, err.Error(), code)
}

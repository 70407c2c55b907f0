package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is an error that knows the status it should be reported with.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func NewHTTPError(status int, format string, args ...any) *HTTPError {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// StatusOf maps an error to the HTTP status it is reported with. Errors that
// carry no status are internal errors.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// RespondWithErr writes err using the status from StatusOf. Internal errors
// are reported with their raw message.
func RespondWithErr(w http.ResponseWriter, err error) {
	RespondWithError(w, StatusOf(err), err.Error())
}

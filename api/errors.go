package api

import (
	"fmt"
	"net/http"
)

// HTTPError represents an error with an HTTP status code. The predeclared
// values below are templates; handlers attach the underlying cause with
// WithErr before returning them.
type HTTPError struct {
	Code    int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// WithErr returns a copy of the HTTPError carrying err as its cause.
func (e *HTTPError) WithErr(err error) *HTTPError {
	return &HTTPError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

var (
	ErrInvalidRequestBodyData   = &HTTPError{Code: http.StatusBadRequest, Message: "invalid request body data"}
	ErrInvalidJSON              = &HTTPError{Code: http.StatusBadRequest, Message: "invalid json body"}
	ErrInvalidCoordinates       = &HTTPError{Code: http.StatusBadRequest, Message: "coordinates out of geographic range"}
	ErrInvalidSearchRadius      = &HTTPError{Code: http.StatusBadRequest, Message: "invalid search radius"}
	ErrInvalidRegisterAuthToken = &HTTPError{Code: http.StatusBadRequest, Message: "invalid register auth token"}
	ErrEmptyPostContent         = &HTTPError{Code: http.StatusBadRequest, Message: "post content is empty or too long"}
	ErrWrongLogin               = &HTTPError{Code: http.StatusUnauthorized, Message: "wrong password or email"}
	ErrUnauthorized             = &HTTPError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrPostNotOwned             = &HTTPError{Code: http.StatusForbidden, Message: "post is not owned by user"}
	ErrPostNotFound             = &HTTPError{Code: http.StatusNotFound, Message: "post not found"}
	ErrUserNotFound             = &HTTPError{Code: http.StatusNotFound, Message: "user not found"}
	ErrTooManyPosts             = &HTTPError{Code: http.StatusTooManyRequests, Message: "post rate limit exceeded"}
	ErrCouldNotInsertToDatabase = &HTTPError{Code: http.StatusInternalServerError, Message: "could not insert to database"}
	ErrInternalServerError      = &HTTPError{Code: http.StatusInternalServerError, Message: "internal server error"}
)

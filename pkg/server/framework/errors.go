package framework

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
)

// FieldError is used to indicate an error with a field in a request payload.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ErrorResponse is the structure of response error payloads sent back to the requester
// when a request fails.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Code   string       `json:"code,omitempty"`
	Fields []FieldError `json:"fields,omitempty"`
}

// SafeError is used to pass an error during the request through the server with
// web specific context. 'Safe' here means that the error messages do not include
// any sensitive information and can be sent straight back to the requester
type SafeError struct {
	Err        error
	StatusCode int
	Code       string
	Fields     []FieldError
}

// SafeError implements the `error` interface. It uses the default message of the
// wrapped error. This is what will be shown in a server's logs
func (err *SafeError) Error() string {
	return err.Err.Error()
}

// Errors returns the error message and all field errors as a single error
func (err *SafeError) Errors() string {
	if len(err.Fields) == 0 {
		return err.Err.Error()
	}
	fields := make([]string, 0, len(err.Fields))
	for _, field := range err.Fields {
		fields = append(fields, field.Field)
	}
	return err.Err.Error() + ": " + strings.Join(fields, ", ")
}

// NewRequestError wraps a provided error with an HTTP status code. This function should be used
// when routers encounter expected errors.
func NewRequestError(err error, statusCode int) error {
	return &SafeError{Err: err, StatusCode: statusCode}
}

// StatusForKind maps a service error kind onto the HTTP status it is reported with.
func StatusForKind(kind svcframework.ErrorKind) int {
	switch kind {
	case svcframework.KindValidation:
		return http.StatusBadRequest
	case svcframework.KindNotFound:
		return http.StatusNotFound
	case svcframework.KindConflict:
		return http.StatusConflict
	case svcframework.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewServiceError converts an error returned by a service into a SafeError. Service errors carry a stable code
// that is safe to return; anything else is reported as an internal error without its message.
func NewServiceError(err error, msg string) *SafeError {
	svcErr, ok := svcframework.AsError(err)
	if !ok {
		return &SafeError{Err: errors.New(msg), StatusCode: http.StatusInternalServerError}
	}
	statusCode := StatusForKind(svcErr.Kind())
	if statusCode == http.StatusInternalServerError {
		return &SafeError{Err: errors.New(msg), StatusCode: statusCode, Code: string(svcErr.Code)}
	}
	return &SafeError{Err: errors.Errorf("%s: %s", msg, svcErr.Error()), StatusCode: statusCode, Code: string(svcErr.Code)}
}

// shutdown is a type used to help with graceful shutdown of a server.
type shutdown struct {
	Message string
}

// shutdown implements the Error interface
func (s *shutdown) Error() string {
	return s.Message
}

// NewShutdownError returns an error that causes the framework to signal
// a graceful shutdown
func NewShutdownError(message string) error {
	return &shutdown{message}
}

// IsShutdown checks to see if the shutdown error is contained in
// the specified error value.
func IsShutdown(err error) bool {
	var shutdownErr *shutdown
	return errors.As(err, &shutdownErr)
}

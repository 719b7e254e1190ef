package framework

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Respond convert a Go value to JSON and sends it to the client.
func Respond(c *gin.Context, data any, statusCode int) {
	// if there's no payload to marshal, set the status code of the response and return
	if statusCode == http.StatusNoContent || data == nil {
		c.Status(statusCode)
		return
	}

	// respond with pretty JSON
	c.IndentedJSON(statusCode, data)
}

// RespondError sends an error response back to the client. If the error is a `SafeError`,
// the error message and fields are sent back to the client. If the error is not a
// `SafeError`, a generic error message is sent back to the client.
func RespondError(c *gin.Context, err error) {
	// if the error provided is a `SafeError`, construct an ErrorResponse
	// using the contents of SafeError and send it back to the client
	var webErr *SafeError
	if ok := errors.As(err, &webErr); ok {
		er := ErrorResponse{
			Error:  webErr.Err.Error(),
			Code:   webErr.Code,
			Fields: webErr.Fields,
		}
		_ = c.Error(err)
		Respond(c, er, webErr.StatusCode)
		c.Abort()
		return
	}

	// if the error isn't a `SafeError`, it's not safe to send back the error
	// message as is because it may contain sensitive data. Send back a generic
	// 500.
	er := ErrorResponse{
		Error: http.StatusText(http.StatusInternalServerError),
	}
	_ = c.Error(err)
	Respond(c, er, http.StatusInternalServerError)
	c.Abort()
}

// LoggingRespondErrWithMsg logs err with a message and responds with the given status code.
func LoggingRespondErrWithMsg(c *gin.Context, err error, errMsg string, statusCode int) {
	logrus.WithError(err).Error(errMsg)
	var webErr *SafeError
	if errors.As(err, &webErr) {
		RespondError(c, &SafeError{Err: errors.Errorf("%s: %s", errMsg, webErr.Errors()), StatusCode: statusCode, Code: webErr.Code, Fields: webErr.Fields})
		return
	}
	RespondError(c, &SafeError{Err: errors.New(errMsg), StatusCode: statusCode})
}

// LoggingRespondErrMsg logs a message and responds with it using the given status code.
func LoggingRespondErrMsg(c *gin.Context, errMsg string, statusCode int) {
	logrus.Error(errMsg)
	RespondError(c, &SafeError{Err: errors.New(errMsg), StatusCode: statusCode})
}

// LoggingRespondServiceErr logs err and responds with the status its service error kind maps to.
func LoggingRespondServiceErr(c *gin.Context, err error, errMsg string) {
	safe := NewServiceError(err, errMsg)
	if safe.StatusCode >= http.StatusInternalServerError {
		logrus.WithError(err).Error(errMsg)
	} else {
		logrus.WithError(err).Debug(errMsg)
	}
	RespondError(c, safe)
}

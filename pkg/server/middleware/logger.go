package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
)

// Logger logs request info after a handler runs, in the form
//
//	(StatusCode) HTTPMethod Path -> IPAddr (latency)
func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		if logger.IsLevelEnabled(logrus.TraceLevel) {
			body, err := framework.PeekRequestBody(c.Request)
			if err != nil {
				logger.WithError(err).Warn("could not read request body")
			} else if body != "" {
				logger.Tracef("%s %s body: %s", c.Request.Method, path, body)
			}
		}

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    path,
			"ip":      c.ClientIP(),
			"latency": time.Since(start).String(),
		})
		if spanContext := trace.SpanContextFromContext(c.Request.Context()); spanContext.HasTraceID() {
			entry = entry.WithField("traceId", spanContext.TraceID().String())
		}

		msg := "(%d) %s %s -> %s (%s)"
		args := []any{c.Writer.Status(), c.Request.Method, path, c.ClientIP(), time.Since(start)}
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Errorf(msg, args...)
		case status >= 400:
			entry.Warnf(msg, args...)
		default:
			entry.Infof(msg, args...)
		}
	}
}

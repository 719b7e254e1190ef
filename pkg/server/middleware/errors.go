package middleware

import (
	"os"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
)

// Errors handles errors coming out of the call stack. Handlers have already written their response, so errors
// are only logged here. A shutdown error signals the server to stop.
func Errors(shutdown chan os.Signal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		errs := c.Errors.ByType(gin.ErrorTypeAny)
		if len(errs) == 0 {
			return
		}

		tracer := trace.SpanFromContext(c.Request.Context()).TracerProvider().Tracer(config.ServiceName)
		_, span := tracer.Start(c.Request.Context(), "service.middleware.errors")
		defer span.End()

		for _, e := range errs {
			if framework.IsShutdown(e.Err) {
				logrus.WithError(e.Err).Error("unsafe error, shutting down")
				c.Set(framework.ShutdownErrorKey, e.Err)
				if shutdown != nil {
					shutdown <- syscall.SIGTERM
				}
				return
			}
		}

		logrus.WithField("traceId", span.SpanContext().TraceID().String()).
			WithField("status", c.Writer.Status()).
			Debugf("request errors: %v", errs.Errors())
	}
}

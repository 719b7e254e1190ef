// Package framework is a minimal web framework.
package framework

import (
	"context"
	"net/http"
	"os"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/config"
)

// ShutdownErrorKey is the gin context key under which the error that triggered a shutdown is kept.
const ShutdownErrorKey = "shutdownError"

// maxHeaderBytes bounds request headers; challenge and verification calls carry only small headers.
const maxHeaderBytes = 1 << 16

// Server is the entrypoint into our application and what configures our context object for each of our http router.
type Server struct {
	*http.Server
	router   *gin.Engine
	shutdown chan os.Signal
}

// NewServer creates a Server that handles a set of routes for the application.
func NewServer(cfg config.ServerConfig, handler *gin.Engine, shutdown chan os.Signal) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              cfg.APIHost,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			MaxHeaderBytes:    maxHeaderBytes,
		},
		router:   handler,
		shutdown: shutdown,
	}
}

// Router exposes the engine the server dispatches to.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves in the background. The returned channel yields at most one error; a graceful stop yields none.
func (s *Server) Start() <-chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logrus.Infof("server started and listening on -> %s", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	return serverErrors
}

// Stop drains in-flight requests until ctx is done, then closes whatever connections remain.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("failed to stop server gracefully, forcing shutdown")
		if closeErr := s.Close(); closeErr != nil {
			return errors.Wrap(closeErr, "closing server")
		}
		return errors.Wrap(err, "stopping server")
	}
	return nil
}

// SignalShutdown is used to gracefully shut down the server when an integrity issue is identified.
func (s *Server) SignalShutdown() {
	if s.shutdown != nil {
		s.shutdown <- syscall.SIGTERM
	}
}

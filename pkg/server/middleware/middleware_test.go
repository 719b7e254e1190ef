package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestErrorsShutdown(t *testing.T) {
	shutdown := make(chan os.Signal, 1)
	engine := gin.New()
	engine.Use(Errors(shutdown))
	engine.GET("/broken", func(c *gin.Context) {
		framework.RespondError(c, framework.NewShutdownError("integrity issue"))
	})
	engine.GET("/bad", func(c *gin.Context) {
		framework.RespondError(c, framework.NewRequestError(errors.New("nope"), http.StatusBadRequest))
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, shutdown, 0)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, shutdown, 1)
}

func TestLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	engine := gin.New()
	engine.Use(Logger(logger))
	engine.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, http.StatusOK, hook.LastEntry().Data["status"])
	assert.Equal(t, "/ok", hook.LastEntry().Data["path"])

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestMetrics(t *testing.T) {
	engine := gin.New()
	engine.Use(Metrics())
	engine.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := m.req.Value()
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, before+1, m.req.Value())
	assert.Equal(t, "5xx", statusClass(http.StatusBadGateway))
	assert.Equal(t, "4xx", statusClass(http.StatusConflict))
	assert.Equal(t, "2xx", statusClass(http.StatusCreated))
}

func TestCORS(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS())
	engine.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Origin", "https://wallet.example.com")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

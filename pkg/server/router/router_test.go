package router

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
)

// generic test config to be used by all tests in this package

type testService struct{}

func (s *testService) Type() framework.Type {
	return "test"
}

func (s *testService) Status() framework.Status {
	return framework.Status{Status: "ready"}
}

func (s *testService) Config() config.ServicesConfig {
	return config.ServicesConfig{StorageProvider: "bolt"}
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRequestValue(t *testing.T, data any) io.Reader {
	dataBytes, err := json.Marshal(data)
	require.NoError(t, err)
	require.NotEmpty(t, dataBytes)
	return bytes.NewReader(dataBytes)
}

// construct a context value as expected by our handler
func newRequestContext(w http.ResponseWriter, req *http.Request) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c
}

// construct a context value with path parameters as expected by our handler
func newRequestContextWithParams(w http.ResponseWriter, req *http.Request, params map[string]string) *gin.Context {
	c := newRequestContext(w, req)
	for k, v := range params {
		c.Params = append(c.Params, gin.Param{Key: k, Value: v})
	}
	return c
}

func TestNewRouters(t *testing.T) {
	constructors := map[string]func(s framework.Service) (any, error){
		"key store":    func(s framework.Service) (any, error) { return NewKeyStoreRouter(s) },
		"request":      func(s framework.Service) (any, error) { return NewRequestRouter(s) },
		"ownership":    func(s framework.Service) (any, error) { return NewOwnershipRouter(s) },
		"review":       func(s framework.Service) (any, error) { return NewReviewRouter(s) },
		"credential":   func(s framework.Service) (any, error) { return NewCredentialRouter(s) },
		"presentation": func(s framework.Service) (any, error) { return NewPresentationRouter(s) },
		"verification": func(s framework.Service) (any, error) { return NewVerificationRouter(s) },
	}
	for name, newRouter := range constructors {
		t.Run(name, func(t *testing.T) {
			_, err := newRouter(nil)
			assert.ErrorContains(t, err, "service cannot be nil")

			_, err = newRouter(&testService{})
			assert.ErrorContains(t, err, "router with service type: test")
		})
	}
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://ssi-vc-service.com/health", nil)
	Health(newRequestContext(w, req))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp GetHealthCheckResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, HealthOK, resp.Status)
	assert.Equal(t, config.ServiceVersion, resp.Version)
	assert.Equal(t, config.APIVersion, resp.API)
}

type notReadyService struct {
	testService
}

func (s *notReadyService) Status() framework.Status {
	return framework.Status{Status: framework.StatusNotReady, Message: "no storage configured"}
}

func TestReadiness(t *testing.T) {
	t.Run("no services", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "https://ssi-vc-service.com/readiness", nil)
		Readiness(nil)(newRequestContext(w, req))
		assert.Equal(t, http.StatusOK, w.Code)

		var resp GetReadinessResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, framework.StatusReady, resp.Status.Status)
		assert.Len(t, resp.ServiceStatuses, 0)
	})

	t.Run("one not ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "https://ssi-vc-service.com/readiness", nil)
		Readiness([]framework.Service{&notReadyService{}})(newRequestContext(w, req))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp GetReadinessResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, framework.StatusNotReady, resp.Status.Status)
		assert.Equal(t, "out of [1] services, [0] are ready", resp.Status.Message)
	})
}

func TestDecodePublicKey(t *testing.T) {
	key, err := decodePublicKey("")
	assert.NoError(t, err)
	assert.Nil(t, key)

	key, err = decodePublicKey("2NEpo7TZRRrLZSi2U")
	assert.NoError(t, err)
	assert.Equal(t, []byte("Hello World!"), key)

	_, err = decodePublicKey("0OIl")
	assert.Error(t, err)
}

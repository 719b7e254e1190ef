package framework

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-vc-service/config"
	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
)

func TestNewServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{svcframework.NewError(svcframework.CodeMissingRequiredField, "holderDid"), http.StatusBadRequest, "MissingRequiredField"},
		{svcframework.NewError(svcframework.CodeRequestNotFound, "r1"), http.StatusNotFound, "RequestNotFound"},
		{errors.Wrap(svcframework.NewError(svcframework.CodeNonceExpired, "n1"), "consuming"), http.StatusConflict, "NonceExpired"},
		{svcframework.NewError(svcframework.CodeBlobStoreFailure, "put"), http.StatusBadGateway, "BlobStoreFailure"},
		{svcframework.NewError(svcframework.CodeSigningFailure, "secret detail"), http.StatusInternalServerError, "SigningFailure"},
		{errors.New("secret detail"), http.StatusInternalServerError, ""},
	}
	for _, test := range tests {
		safe := NewServiceError(test.err, "could not do it")
		assert.Equal(t, test.status, safe.StatusCode, test.err.Error())
		assert.Equal(t, test.code, safe.Code)
		if test.status == http.StatusInternalServerError {
			assert.NotContains(t, safe.Error(), "secret detail")
		}
	}
}

func TestIsShutdown(t *testing.T) {
	assert.True(t, IsShutdown(errors.Wrap(NewShutdownError("bye"), "wrapped")))
	assert.False(t, IsShutdown(errors.New("bye")))
}

type decodeTarget struct {
	Name string `json:"name" validate:"required"`
}

func TestDecode(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var got decodeTarget
		req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"Ann"}`))
		require.NoError(t, Decode(req, &got))
		assert.Equal(t, "Ann", got.Name)
	})

	t.Run("missing field", func(t *testing.T) {
		var got decodeTarget
		req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{}`))
		err := Decode(req, &got)
		var safe *SafeError
		require.True(t, errors.As(err, &safe))
		assert.Equal(t, http.StatusBadRequest, safe.StatusCode)
		require.Len(t, safe.Fields, 1)
		assert.Equal(t, "name", safe.Fields[0].Field)
		assert.Equal(t, "field validation error: name", safe.Errors())
	})

	t.Run("custom tags", func(t *testing.T) {
		type target struct {
			Holder string `json:"holder" validate:"required,did"`
			Hash   string `json:"hash" validate:"omitempty,sha256hex"`
		}
		err := ValidateRequest(target{Holder: "did:ethr:0x2c7536e3605d9c16a7a3d7b1898e529396a65c23", Hash: strings.Repeat("ab", 32)})
		assert.NoError(t, err)

		err = ValidateRequest(target{Holder: "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"})
		var safe *SafeError
		require.True(t, errors.As(err, &safe))
		assert.Equal(t, string(svcframework.CodeMalformedDID), safe.Code)
		require.Len(t, safe.Fields, 1)
		assert.Contains(t, safe.Fields[0].Error, "did:<method>:<id>")

		err = ValidateRequest(target{Holder: "did:web:localhost", Hash: "00"})
		require.True(t, errors.As(err, &safe))
		assert.Equal(t, "InvalidField", safe.Code)
		assert.Equal(t, "hash", safe.Fields[0].Field)
	})

	t.Run("unknown field", func(t *testing.T) {
		var got decodeTarget
		req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"Ann","age":3}`))
		assert.Error(t, Decode(req, &got))
	})

	t.Run("empty body", func(t *testing.T) {
		var got decodeTarget
		req := httptest.NewRequest(http.MethodPut, "/", nil)
		assert.Error(t, Decode(req, &got))
	})
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	LoggingRespondServiceErr(c, svcframework.NewError(svcframework.CodeNonceAlreadyUsed, "n1"), "could not verify")
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "NonceAlreadyUsed", resp.Code)
	assert.Equal(t, "could not verify: NonceAlreadyUsed: n1", resp.Error)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	RespondError(c, errors.New("db password is hunter2"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestPeekRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"Ann"}`))
	body, err := PeekRequestBody(req)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ann"}`, body)

	var got decodeTarget
	require.NoError(t, Decode(req, &got))
	assert.Equal(t, "Ann", got.Name)
}

func TestServerStartStop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	shutdown := make(chan os.Signal, 1)
	s := NewServer(config.ServerConfig{APIHost: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: time.Second}, gin.New(), shutdown)

	serverErrors := s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))

	select {
	case err := <-serverErrors:
		t.Fatalf("unexpected server error: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	s.SignalShutdown()
	assert.Equal(t, syscall.SIGTERM, <-shutdown)
}

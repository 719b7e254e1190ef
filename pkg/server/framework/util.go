package framework

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// GetParam is a utility to get a path parameter from context, nil if not found
func GetParam(c *gin.Context, param string) *string {
	got := c.Param(param)
	if got == "" {
		return nil
	}
	return &got
}

// GetQueryValue is a utility to get a parameter value from the query string, nil if not found
func GetQueryValue(c *gin.Context, param string) *string {
	got, ok := c.GetQuery(param)
	if !ok || got == "" {
		return nil
	}
	return &got
}

// PeekRequestBody reads a request's body and puts it back so that handlers can read it again
func PeekRequestBody(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return "", errors.Wrap(err, "could not read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return string(bodyBytes), nil
}

package middleware

import (
	"expvar"
	"runtime"

	"github.com/gin-gonic/gin"
)

// m contains global program counters
var m = struct {
	gr       *expvar.Int
	req      *expvar.Int
	err      *expvar.Int
	byStatus *expvar.Map
}{
	gr:       expvar.NewInt("goroutines"),
	req:      expvar.NewInt("requests"),
	err:      expvar.NewInt("errors"),
	byStatus: expvar.NewMap("responses"),
}

// Metrics counts requests, failed requests and responses per status class.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		m.req.Add(1)

		// update the counter for the # of active goroutines every 100 requests.
		if m.req.Value()%100 == 0 {
			m.gr.Set(int64(runtime.NumGoroutine()))
		}

		if len(c.Errors) > 0 {
			m.err.Add(1)
		}
		m.byStatus.Add(statusClass(c.Writer.Status()), 1)
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMembershipMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMembershipMetrics(reg)

	m.SeatReserved()
	m.SeatReserved()
	m.SeatReleased()
	m.SeatExhausted()
	m.ObserveOperation("add_user_direct", "ok")
	m.SideEffectFailed("audit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.seatReserved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.seatReleased))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.seatDenied))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("add_user_direct", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sideEffects.WithLabelValues("audit")))
}

func TestNilMembershipMetricsIsSafe(t *testing.T) {
	var m *MembershipMetrics
	assert.NotPanics(t, func() {
		m.SeatReserved()
		m.SeatReleased()
		m.SeatExhausted()
		m.ObserveOperation("x", "y")
		m.SideEffectFailed("audit")
	})
}

func TestGinMiddlewareLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/api/invites/:token", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/invites/a", "/api/invites/b", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/invites/:token", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))
}

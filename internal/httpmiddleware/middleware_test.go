package httpmiddleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"classattend/internal/clock"
	"classattend/internal/httpmiddleware"
)

func TestLimiter(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	l := httpmiddleware.NewLimiter(2, 60, clk)

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"))

	clk.Advance(time.Second)
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	clk.Advance(time.Hour)
	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
}

func TestLimiterDropsIdleBuckets(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	l := httpmiddleware.NewLimiter(1, 6, clk)
	require.True(t, l.Allow("stu-1"))
	require.True(t, l.Allow("stu-2"))
	require.Equal(t, 2, l.Len())

	clk.Advance(11 * time.Minute)
	require.True(t, l.Allow("stu-3"))
	require.Equal(t, 1, l.Len())
}

func TestTimeoutSetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Timeout(time.Second), httpmiddleware.RequestLog("/healthz"))
	r.GET("/x", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		require.True(t, ok)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.NewLimiter(1, 1, nil).Middleware(httpmiddleware.ClientIP))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "60", w.Header().Get("Retry-After"))
}

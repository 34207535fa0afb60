package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/larderhq/larder/internal/observability"
	"github.com/larderhq/larder/internal/shared"
	_ "github.com/larderhq/larder/internal/testing/guard"
)

func TestRouterHealthAndMetrics(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:  NewLogger(nil),
		Config:  &Config{},
		Metrics: observability.NewMetrics(),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "larder_http_requests_total")
}

func TestActorMiddlewarePopulatesContext(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	})

	var wrapped http.Handler = handler
	stack := MiddlewareStack(MiddlewareConfig{Logger: NewLogger(nil), Config: &Config{}})
	for i := len(stack) - 1; i >= 0; i-- {
		wrapped = stack[i](wrapped)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stock", nil)
	req.Header.Set(ActorHeader, "chef")
	wrapped.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "chef", seen)
}

func TestInTestModeGuard(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}

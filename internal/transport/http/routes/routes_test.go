package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/config"
	httproutes "github.com/Tchelo1688/brvm-academy-iam/internal/transport/http/routes"
)

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)

	return httproutes.Register(httproutes.Dependencies{
		Config: &config.AppConfig{App: config.AppSettings{Env: "test"}},
		Logger: zap.NewNop(),
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestRegisterMountsAuthNamespace(t *testing.T) {
	r := newTestEngine()

	registered := make(map[string]bool)
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"POST /api/v1/auth/register",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/logout",
		"GET /api/v1/auth/me",
		"POST /api/v1/auth/change-password",
		"POST /api/v1/auth/password-reset/request",
		"POST /api/v1/auth/password-reset/confirm",
		"POST /api/v1/auth/2fa/setup",
		"POST /api/v1/auth/2fa/verify",
		"POST /api/v1/auth/2fa/disable",
		"GET /api/v1/auth/sessions",
		"POST /api/v1/auth/sessions/revoke-all",
		"DELETE /api/v1/auth/sessions/:id",
		"GET /api/v1/audit",
		"GET /api/v1/audit/overview",
		"GET /healthz",
		"GET /readyz",
		"GET /metrics",
	}

	for _, want := range expected {
		if !registered[want] {
			t.Errorf("route %s is not registered", want)
		}
	}
}

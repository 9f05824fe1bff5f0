package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"referral-ledger/monitoring"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	for _, h := range handlers {
		app.Use(h)
	}
	app.Get("/accounts/:id", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user": UserID(c), "admin": HasRole(c, RoleAdmin)})
	})
	return app
}

func status(t *testing.T, app *fiber.App, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest("GET", "/accounts/42", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp.StatusCode
}

func TestGatewayAuth(t *testing.T) {
	app := newApp(GatewayAuthMiddleware("s3cret", nil))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong", "Bearer nope", fiber.StatusUnauthorized},
		{"bearer", "Bearer s3cret", fiber.StatusOK},
		{"raw", "s3cret", fiber.StatusOK},
	}
	for _, tt := range tests {
		h := map[string]string{}
		if tt.header != "" {
			h["Authorization"] = tt.header
		}
		if got := status(t, app, h); got != tt.want {
			t.Fatalf("%s: status %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestGatewayAuthDisabledWithoutToken(t *testing.T) {
	app := newApp(GatewayAuthMiddleware("", nil))
	if got := status(t, app, nil); got != fiber.StatusOK {
		t.Fatalf("status %d, want 200", got)
	}
}

func TestUserContextAndRoles(t *testing.T) {
	app := newApp(UserContextMiddleware(nil), RequireRole(RoleAdmin))

	if got := status(t, app, nil); got != fiber.StatusUnauthorized {
		t.Fatalf("missing user: status %d", got)
	}
	if got := status(t, app, map[string]string{"X-User-ID": "u1", "X-User-Roles": "user"}); got != fiber.StatusForbidden {
		t.Fatalf("non-admin: status %d", got)
	}
	if got := status(t, app, map[string]string{"X-User-ID": "u1", "X-User-Roles": "user, Admin"}); got != fiber.StatusOK {
		t.Fatalf("admin: status %d", got)
	}
}

func TestHTTPMetricsUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	app := newApp(HTTPMetrics(m))

	status(t, app, nil)
	status(t, app, nil)

	expected := `
# HELP ledger_http_requests_total Total number of HTTP requests.
# TYPE ledger_http_requests_total counter
ledger_http_requests_total{method="GET",path="/accounts/:id",status="200"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "ledger_http_requests_total"); err != nil {
		t.Fatal(err)
	}
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	app := newApp(RequestLogger(zap.New(core)), UserContextMiddleware(nil))

	status(t, app, nil)
	status(t, app, map[string]string{"X-User-ID": "u1"})

	entries := logs.FilterMessage("request").All()
	if len(entries) != 2 {
		t.Fatalf("logged %d requests, want 2", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(fiber.StatusUnauthorized) {
		t.Fatalf("first status = %v, want 401", got)
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.DebugLevel {
		t.Fatalf("unexpected levels %s, %s", entries[0].Level, entries[1].Level)
	}
}

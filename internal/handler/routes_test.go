package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"cors-proxy-go/internal/metrics"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	cfg := testConfig()
	svc, allow := newTestProxyService(t, cfg, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	proxy := NewProxyHandler(svc, logger)
	health := NewHealthHandler(cfg, allow, "test")

	e := echo.New()
	RegisterRoutes(e, cfg, metrics.New(), proxy, health)

	tests := []struct {
		name       string
		method     string
		path       string
		target     string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", "", http.StatusOK},
		{"GET /status", http.MethodGet, "/status", "", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"GET /proxy", http.MethodGet, "/proxy", "https://example.com/a", http.StatusOK},
		{"POST /proxy", http.MethodPost, "/proxy", "https://example.com/a", http.StatusOK},
		{"DELETE /proxy", http.MethodDelete, "/proxy", "https://example.com/a", http.StatusOK},
		{"GET /proxy without target", http.MethodGet, "/proxy", "", http.StatusBadRequest},
		{"GET /unknown returns 404", http.MethodGet, "/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			if tt.target != "" {
				req.Header.Set("X-Target-URL", tt.target)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	svc, allow := newTestProxyService(t, cfg, func(w http.ResponseWriter, _ *http.Request) {})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := echo.New()
	RegisterRoutes(e, cfg, metrics.New(), NewProxyHandler(svc, logger), NewHealthHandler(cfg, allow, "test"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRegisterRoutes_MetricsExposition(t *testing.T) {
	cfg := testConfig()
	svc, allow := newTestProxyService(t, cfg, func(w http.ResponseWriter, _ *http.Request) {})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	m.Rejections.WithLabelValues("forbidden_target").Inc()

	e := echo.New()
	RegisterRoutes(e, cfg, m, NewProxyHandler(svc, logger), NewHealthHandler(cfg, allow, "test"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `cors_proxy_rejections_total{kind="forbidden_target"} 1`) {
		t.Errorf("metrics output missing rejection counter:\n%s", rec.Body.String())
	}
}

package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCORS_SetsHeaders(t *testing.T) {
	e := echo.New()
	e.Use(CORS())
	e.GET("/proxy", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/proxy", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, PUT, PATCH, POST, DELETE" {
		t.Errorf("Access-Control-Allow-Methods = %q", v)
	}
	if v := rec.Header().Values("Access-Control-Allow-Headers"); len(v) != 0 {
		t.Errorf("Access-Control-Allow-Headers should be absent, got %v", v)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestCORS_EchoesRequestHeaders(t *testing.T) {
	e := echo.New()
	e.Use(CORS())
	e.GET("/proxy", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/proxy", http.NoBody)
	req.Header.Set("Access-Control-Request-Headers", "x-target-url, x-custom-headers")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("Access-Control-Allow-Headers"); v != "x-target-url, x-custom-headers" {
		t.Errorf("Access-Control-Allow-Headers = %q", v)
	}
}

func TestCORS_Preflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS())

	called := false
	e.Any("/proxy", func(c echo.Context) error {
		called = true
		return c.String(http.StatusTeapot, "handler")
	})

	req := httptest.NewRequest(http.MethodOptions, "/proxy", http.NoBody)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "x-target-url")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	if called {
		t.Error("preflight must not reach the handler")
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Headers"); v != "x-target-url" {
		t.Errorf("Access-Control-Allow-Headers = %q, want %q", v, "x-target-url")
	}
}

func TestCORS_PreflightUnknownRoute(t *testing.T) {
	e := echo.New()
	e.Use(CORS())

	req := httptest.NewRequest(http.MethodOptions, "/anything", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestCORS_HeadersSurviveErrors(t *testing.T) {
	e := echo.New()
	e.Use(CORS())
	e.GET("/proxy", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("boom")
	})

	for _, path := range []string{"/proxy", "/boom", "/missing"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
			t.Errorf("%s: Access-Control-Allow-Origin = %q, want %q", path, v, "*")
		}
	}
}

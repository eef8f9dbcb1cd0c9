package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	var seen string
	h := RequestID()(func(c echo.Context) error {
		seen, _ = c.Get(RequestIDKey).(string)
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == "" {
		t.Error("expected request_id to be generated")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected response header %q, got %q", seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "my-custom-id" {
		t.Errorf("expected my-custom-id, got %s", got)
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/concepts", nil), httptest.NewRecorder())
	c.Set(RequestIDKey, "req-1")
	c.Set("organisation", "demo")

	h := Logger(logger)(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"request_id":"req-1"`, `"organisation":"demo"`, `"status":200`, `"path":"/api/v1/concepts"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestLogger_LogsErrors(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	h := Logger(zerolog.New(&buf))(func(c echo.Context) error { return errors.New("boom") })
	if err := h(c); err == nil {
		t.Fatal("expected error to pass through")
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected error level, got %s", buf.String())
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())

	h := Recovery(zerolog.Nop())(func(c echo.Context) error { panic("test panic") })
	err := h(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())
	h := Recovery(zerolog.Nop())(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseLimit(t *testing.T) {
	tests := map[string]int64{
		"":     1 << 20,
		"512":  512,
		"4K":   4 << 10,
		"10M":  10 << 20,
		"10MB": 10 << 20,
		"1G":   1 << 30,
		"junk": 1 << 20,
	}
	for in, want := range tests {
		if got := parseLimit(in); got != want {
			t.Errorf("parseLimit(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	mw := BodyLimit("8", "32", "/api/v1/import")
	read := func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	}
	tests := []struct {
		name    string
		path    string
		body    string
		wantErr bool
	}{
		{"small default", "/api/v1/export", "1234", false},
		{"large default", "/api/v1/export", strings.Repeat("x", 20), true},
		{"large upload", "/api/v1/import/IndividualProfile", strings.Repeat("x", 20), false},
		{"too large upload", "/api/v1/import/IndividualProfile", strings.Repeat("x", 40), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.ContentLength = -1
			c := e.NewContext(req, httptest.NewRecorder())
			err := mw(read)(c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

package dataplane

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/lhanjian/yarhs/internal/fileserver"
	"github.com/lhanjian/yarhs/internal/snapshot"
)

func newTestHandler(t *testing.T, snap *snapshot.Snapshot) *Handler {
	t.Helper()
	reg := snapshot.New(snap)
	responder := fileserver.NewResponder(t.TempDir())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(reg, responder, log)
}

func TestServeHTTPHealthCheck(t *testing.T) {
	h := newTestHandler(t, &snapshot.Snapshot{
		Routes: snapshot.RoutesConfig{
			Health: snapshot.HealthConfig{Enabled: true, LivenessPath: "/healthz"},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServeHTTPMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, &snapshot.Snapshot{
		Routes: snapshot.RoutesConfig{
			CustomRoutes: snapshot.CustomRoutes{
				{Path: "/x", Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 200, Body: "ok"}},
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if rec.Header().Get("Allow") != allowHeader {
		t.Fatalf("Allow = %q, want %q", rec.Header().Get("Allow"), allowHeader)
	}
}

func TestServeHTTPOptions(t *testing.T) {
	h := newTestHandler(t, &snapshot.Snapshot{
		Routes: snapshot.RoutesConfig{
			CustomRoutes: snapshot.CustomRoutes{
				{Path: "/x", Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 200, Body: "ok"}},
			},
		},
	})

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestServeHTTPDirectAction(t *testing.T) {
	h := newTestHandler(t, &snapshot.Snapshot{
		Routes: snapshot.RoutesConfig{
			CustomRoutes: snapshot.CustomRoutes{
				{Path: "/hello", Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 201, Body: "hi there", ContentType: "text/plain"}},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if rec.Body.String() != "hi there" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestServeHTTPRedirectAction(t *testing.T) {
	h := newTestHandler(t, &snapshot.Snapshot{
		Routes: snapshot.RoutesConfig{
			CustomRoutes: snapshot.CustomRoutes{
				{Path: "/old", Action: snapshot.RouteAction{Type: snapshot.ActionRedirect, Target: "/new", Code: 301}},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/old", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/new" {
		t.Fatalf("Location = %q", got)
	}
}

func TestServeHTTPServesStaticFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "page.html"), []byte("<p>hi</p>"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	reg := snapshot.New(&snapshot.Snapshot{
		Routes: snapshot.RoutesConfig{
			CustomRoutes: snapshot.CustomRoutes{
				{Path: "/static", Action: snapshot.RouteAction{Type: snapshot.ActionDir, Path: "."}},
			},
		},
		HTTP: snapshot.HTTPConfig{DefaultContentType: "application/octet-stream"},
	})
	responder := fileserver.NewResponder(dir)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(reg, responder, log)

	req := httptest.NewRequest(http.MethodGet, "/static/page.html", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "<p>hi</p>" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestServeHTTPNotFound(t *testing.T) {
	h := newTestHandler(t, &snapshot.Snapshot{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestServeHTTPRecordsAccessLogWithRealStatus(t *testing.T) {
	h := newTestHandler(t, &snapshot.Snapshot{
		Routes: snapshot.RoutesConfig{
			CustomRoutes: snapshot.CustomRoutes{
				{Path: "/teapot", Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 418, Body: "I'm a teapot"}},
			},
		},
	})

	var recordedStatus int
	h.AccessLog = func(req *http.Request, status int, snap *snapshot.Snapshot) {
		recordedStatus = status
	}

	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if recordedStatus != 418 {
		t.Fatalf("access log recorded status %d, want 418 (the actual response status)", recordedStatus)
	}
}

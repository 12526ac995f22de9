// Package dataplane implements the Method & Health Layer and Connection
// Driver (spec §4.6): the outermost request gate that runs the matcher,
// applies the GET/HEAD/OPTIONS/405 method gate, enforces the request body
// size limit, and dispatches to the file responder or a redirect/direct
// action. It is the http.Handler wired to the main listener.
package dataplane

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lhanjian/yarhs/internal/accesslog"
	"github.com/lhanjian/yarhs/internal/fileserver"
	"github.com/lhanjian/yarhs/internal/match"
	"github.com/lhanjian/yarhs/internal/metrics"
	"github.com/lhanjian/yarhs/internal/snapshot"
)

// allowHeader is the fixed Allow value for every matched resource — the
// data plane only ever fully services GET/HEAD and answers OPTIONS.
const allowHeader = "GET, HEAD, OPTIONS"

// Handler is the data-plane http.Handler. One Handler serves the whole
// main listener; its only mutable state is the snapshot registry, read
// fresh on every request via a single atomic load (§4.1).
type Handler struct {
	Registry  *snapshot.Registry
	Responder *fileserver.Responder
	Log       *slog.Logger

	// AccessLog, when set, is called once per request after the response
	// is written, with the final status code.
	AccessLog func(req *http.Request, status int, snap *snapshot.Snapshot)

	// Metrics is optional; when set, every request is recorded.
	Metrics *metrics.Metrics
}

func New(reg *snapshot.Registry, responder *fileserver.Responder, log *slog.Logger) *Handler {
	return &Handler{Registry: reg, Responder: responder, Log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	snap := h.Registry.Current()
	rec := accesslog.NewStatusRecorder(w)
	h.serve(rec, req, snap)
	if h.Log != nil && rec.Status() >= 400 {
		h.Log.Warn("data-plane request failed", "method", req.Method, "path", req.URL.Path,
			"status", rec.Status(), "error", http.StatusText(rec.Status()))
	}
	if h.AccessLog != nil {
		h.AccessLog(req, rec.Status(), snap)
	}
	if h.Metrics != nil {
		h.Metrics.ObserveRequest(req.Method, rec.Status(), time.Since(start).Seconds())
	}
}

func (h *Handler) serve(w http.ResponseWriter, req *http.Request, snap *snapshot.Snapshot) {
	if snap.HTTP.ServerName != "" {
		w.Header().Set("Server", snap.HTTP.ServerName)
	}
	if snap.HTTP.EnableCORS {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	if snap.HTTP.MaxBodySize > 0 && req.ContentLength > snap.HTTP.MaxBodySize {
		http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
		return
	}

	action := match.Match(snap, match.Request{
		Host:    req.Host,
		Method:  req.Method,
		Path:    req.URL.Path,
		Headers: req.Header,
	})

	if action.Kind == match.KindHealth {
		writeHealth(w)
		return
	}

	if action.Kind == match.KindNotFound {
		http.NotFound(w, req)
		return
	}

	switch req.Method {
	case http.MethodOptions:
		w.Header().Set("Allow", allowHeader)
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
		// fall through to dispatch below
	default:
		w.Header().Set("Allow", allowHeader)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch action.Kind {
	case match.KindRedirect:
		w.Header().Set("Location", action.RedirectTarget)
		w.WriteHeader(action.RedirectCode)

	case match.KindDirect:
		w.Header().Set("Content-Type", action.DirectContentType)
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(action.DirectBody)))
		w.WriteHeader(action.DirectStatus)
		if req.Method != http.MethodHead {
			_, _ = w.Write([]byte(action.DirectBody))
		}

	case match.KindServeDir, match.KindServeFile:
		h.serveFile(w, req, action, snap)

	default:
		http.NotFound(w, req)
	}
}

func (h *Handler) serveFile(w http.ResponseWriter, req *http.Request, action match.Action, snap *snapshot.Snapshot) {
	path, err := h.Responder.Resolve(action)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	if err := h.Responder.ServeHTTP(w, req, path, snap.HTTP.DefaultContentType); err != nil {
		if h.Log != nil {
			h.Log.Error("file responder write failed", "path", path, "error", err)
		}
	}
}

func writeResolveError(w http.ResponseWriter, err error) {
	status := http.StatusNotFound
	msg := "not found"
	if e, ok := err.(*fileserver.Error); ok {
		status = e.Status
		msg = e.Msg
	}
	http.Error(w, msg, status)
}

func writeHealth(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

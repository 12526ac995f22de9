// Package xds implements the control-plane discovery endpoint (spec §4.8,
// §6): a bespoke JSON-over-HTTP rendition of the xDS request/response
// envelope, not the real Envoy gRPC protocol — GET fetches a resource
// bundle (or the whole snapshot), POST validates and publishes a new one
// under optimistic-lock control, and every GET response and ACK carries
// the version_info/nonce pair the teacher's real xDS server got from
// go-control-plane's SnapshotCache for free.
package xds

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lhanjian/yarhs/internal/metrics"
	"github.com/lhanjian/yarhs/internal/snapshot"
	"github.com/lhanjian/yarhs/internal/validate"
)

// DiscoveryRequest is the POST body: the resources to apply plus an
// optional optimistic-lock precondition.
type DiscoveryRequest struct {
	VersionInfo *int64            `json:"version_info,omitempty"`
	Resources   []json.RawMessage `json:"resources"`
}

// DiscoveryResponse is the envelope returned for GET /v1/discovery:<type>.
// A successful POST returns an AckResponse instead.
type DiscoveryResponse struct {
	VersionInfo int64         `json:"version_info"`
	Nonce       uint64        `json:"nonce"`
	TypeURL     string        `json:"type_url"`
	Resources   []interface{} `json:"resources"`
}

// bundleEnvelope wraps a single resource bundle's current value with its
// own version/nonce, the shape GET /v1/discovery nests each bundle in.
type bundleEnvelope struct {
	VersionInfo int64       `json:"version_info"`
	Nonce       uint64      `json:"nonce"`
	Value       interface{} `json:"value"`
}

// snapshotResources is the "resources" object of the full-snapshot GET.
type snapshotResources struct {
	Listener     bundleEnvelope `json:"listener"`
	Route        bundleEnvelope `json:"route"`
	HTTP         bundleEnvelope `json:"http"`
	Logging      bundleEnvelope `json:"logging"`
	Performance  bundleEnvelope `json:"performance"`
	VirtualHosts bundleEnvelope `json:"virtual_hosts"`
}

// snapshotResponse is the body of GET /v1/discovery.
type snapshotResponse struct {
	VersionInfo int64             `json:"version_info"`
	Resources   snapshotResources `json:"resources"`
}

// AckResponse is returned on a successful POST.
type AckResponse struct {
	Status      string `json:"status"`
	VersionInfo int64  `json:"version_info"`
	Nonce       uint64 `json:"nonce"`
	Message     string `json:"message,omitempty"`
}

// NackResponse is returned when validation or the optimistic lock fails.
type NackResponse struct {
	Status      string      `json:"status"`
	ErrorDetail ErrorDetail `json:"error_detail"`
}

// ErrorDetail mirrors the wire shape of a rejected write.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler serves the /v1/discovery control-plane endpoint.
type Handler struct {
	Registry *snapshot.Registry
	Log      *slog.Logger

	// Metrics is optional; when set, every POST outcome is recorded as an
	// ACK/NACK observation.
	Metrics *metrics.Metrics
}

func New(reg *snapshot.Registry, log *slog.Logger) *Handler {
	return &Handler{Registry: reg, Log: log}
}

// typeURLs maps the URL suffix after the ":" to a ResourceType, mirroring
// the xDS convention of a type_url discriminating which resource the
// request concerns (§4.3).
var typeURLs = map[string]snapshot.ResourceType{
	"listener":      snapshot.ResourceListener,
	"route":         snapshot.ResourceRoute,
	"http":          snapshot.ResourceHTTP,
	"logging":       snapshot.ResourceLogging,
	"performance":   snapshot.ResourcePerformance,
	"virtual_hosts": snapshot.ResourceVirtualHost,
}

// typeURLNames maps a ResourceType to its wire type_url, "type.yarhs.io/<TYPE>".
var typeURLNames = map[snapshot.ResourceType]string{
	snapshot.ResourceListener:    "type.yarhs.io/LISTENER",
	snapshot.ResourceRoute:       "type.yarhs.io/ROUTE",
	snapshot.ResourceHTTP:        "type.yarhs.io/HTTP",
	snapshot.ResourceLogging:     "type.yarhs.io/LOGGING",
	snapshot.ResourcePerformance: "type.yarhs.io/PERFORMANCE",
	snapshot.ResourceVirtualHost: "type.yarhs.io/VIRTUAL_HOST",
}

// ServeHTTP dispatches GET /v1/discovery, GET /v1/discovery:<type>, and
// POST /v1/discovery:<type>. The correlation ID attached to the logger
// here is for operator tracing only — it never appears on the wire, since
// the spec's ACK/NACK envelope has no room for one.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	corrID := uuid.New().String()
	log := h.Log.With("correlation_id", corrID)

	path := strings.TrimPrefix(req.URL.Path, "/v1/discovery")
	rtype, hasType := "", false
	if strings.HasPrefix(path, ":") {
		rtype = strings.TrimPrefix(path, ":")
		hasType = true
	} else if path != "" {
		http.NotFound(w, req)
		return
	}

	switch req.Method {
	case http.MethodGet:
		if !hasType {
			h.getFull(w, log)
			return
		}
		h.getOne(w, req, rtype, log)
	case http.MethodPost:
		if !hasType {
			writeNack(w, http.StatusBadRequest, "POST requires a resource type suffix, e.g. /v1/discovery:http")
			return
		}
		h.post(w, req, rtype, log)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getFull(w http.ResponseWriter, log *slog.Logger) {
	snap := h.Registry.Current()
	versions := h.Registry.Versions()
	current := versions.CurrentVersion()

	envelope := func(t snapshot.ResourceType, value interface{}) bundleEnvelope {
		return bundleEnvelope{VersionInfo: current, Nonce: versions.Nonce(t), Value: value}
	}

	writeJSON(w, http.StatusOK, snapshotResponse{
		VersionInfo: current,
		Resources: snapshotResources{
			Listener:     envelope(snapshot.ResourceListener, snap.Listener),
			Route:        envelope(snapshot.ResourceRoute, snap.Routes),
			HTTP:         envelope(snapshot.ResourceHTTP, snap.HTTP),
			Logging:      envelope(snapshot.ResourceLogging, snap.Logging),
			Performance:  envelope(snapshot.ResourcePerformance, snap.Performance),
			VirtualHosts: envelope(snapshot.ResourceVirtualHost, snap.VirtualHosts),
		},
	})
}

func (h *Handler) getOne(w http.ResponseWriter, req *http.Request, rtype string, log *slog.Logger) {
	t, ok := typeURLs[rtype]
	if !ok {
		http.NotFound(w, req)
		return
	}

	snap := h.Registry.Current()
	var resource interface{}
	switch t {
	case snapshot.ResourceListener:
		resource = snap.Listener
	case snapshot.ResourceRoute:
		resource = snap.Routes
	case snapshot.ResourceHTTP:
		resource = snap.HTTP
	case snapshot.ResourceLogging:
		resource = snap.Logging
	case snapshot.ResourcePerformance:
		resource = snap.Performance
	case snapshot.ResourceVirtualHost:
		resource = snap.VirtualHosts
	}

	writeJSON(w, http.StatusOK, DiscoveryResponse{
		VersionInfo: h.Registry.Versions().CurrentVersion(),
		Nonce:       h.Registry.Versions().Nonce(t),
		TypeURL:     typeURLNames[t],
		Resources:   []interface{}{resource},
	})
}

func (h *Handler) post(w http.ResponseWriter, req *http.Request, rtype string, log *slog.Logger) {
	t, ok := typeURLs[rtype]
	if !ok {
		writeNack(w, http.StatusBadRequest, fmt.Sprintf("unknown resource type %q", rtype))
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, 8<<20))
	if err != nil {
		writeNack(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var dreq DiscoveryRequest
	if err := json.Unmarshal(body, &dreq); err != nil {
		writeNack(w, http.StatusBadRequest, fmt.Sprintf("malformed discovery request: %v", err))
		return
	}

	prev := h.Registry.Current()
	next := prev.Clone()

	var nerr *snapshot.NackError
	switch t {
	case snapshot.ResourceListener:
		v, verr := validate.Listener(dreq.Resources)
		nerr = verr
		if verr == nil {
			next = snapshot.ApplyListener(next, v)
		}
	case snapshot.ResourceRoute:
		v, verr := validate.Route(dreq.Resources)
		nerr = verr
		if verr == nil {
			next = snapshot.ApplyRoutes(next, v)
		}
	case snapshot.ResourceHTTP:
		v, verr := validate.HTTP(dreq.Resources)
		nerr = verr
		if verr == nil {
			next = snapshot.ApplyHTTP(next, v)
		}
	case snapshot.ResourceLogging:
		v, verr := validate.Logging(dreq.Resources)
		nerr = verr
		if verr == nil {
			next = snapshot.ApplyLogging(next, v)
		}
	case snapshot.ResourcePerformance:
		v, verr := validate.Performance(dreq.Resources)
		nerr = verr
		if verr == nil {
			next = snapshot.ApplyPerformance(next, v)
		}
	case snapshot.ResourceVirtualHost:
		v, verr := validate.VirtualHosts(dreq.Resources)
		nerr = verr
		if verr == nil {
			next = snapshot.ApplyVirtualHosts(next, v)
		}
	}

	if nerr != nil {
		log.Warn("xds POST rejected by validator", "type", rtype, "error", nerr.Message)
		if h.Metrics != nil {
			h.Metrics.ObserveNACK(t, nerr.Code)
		}
		writeNack(w, nerr.Code, nerr.Message)
		return
	}

	result, err := h.Registry.Publish(t, next, dreq.VersionInfo)
	if err != nil {
		if ne, ok := err.(*snapshot.NackError); ok {
			log.Warn("xds POST rejected by optimistic lock", "type", rtype, "error", ne.Message)
			if h.Metrics != nil {
				h.Metrics.ObserveNACK(t, ne.Code)
			}
			writeNack(w, ne.Code, ne.Message)
			return
		}
		writeNack(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.Metrics != nil {
		h.Metrics.ObserveACK(t)
	}
	log.Info("xds POST accepted", "type", rtype, "version_info", result.VersionInfo, "nonce", result.Nonce)
	writeJSON(w, http.StatusOK, AckResponse{
		Status:      "ACK",
		VersionInfo: result.VersionInfo,
		Nonce:       result.Nonce,
		Message:     fmt.Sprintf("%s applied", rtype),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNack(w http.ResponseWriter, code int, message string) {
	status := code
	if status < 400 || status > 599 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, NackResponse{
		Status: "NACK",
		ErrorDetail: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

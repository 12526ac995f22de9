// Package snapshot holds the immutable configuration record the data plane
// reads and the control plane replaces wholesale on every accepted write.
//
// A Snapshot is never mutated in place. Writers clone the current one,
// apply a typed change, validate the result, and publish a brand new
// pointer. Readers take a single atomic load and hold their reference for
// the lifetime of one request — see Registry.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ResourceType names one of the six xDS-style resource bundles.
type ResourceType string

const (
	ResourceListener    ResourceType = "listener"
	ResourceRoute       ResourceType = "route"
	ResourceHTTP        ResourceType = "http"
	ResourceLogging     ResourceType = "logging"
	ResourcePerformance ResourceType = "performance"
	ResourceVirtualHost ResourceType = "virtual_hosts"
)

// AllResourceTypes is the fixed enumeration order used when serializing a
// full snapshot (GET /v1/discovery).
var AllResourceTypes = []ResourceType{
	ResourceListener,
	ResourceRoute,
	ResourceHTTP,
	ResourceLogging,
	ResourcePerformance,
	ResourceVirtualHost,
}

// Endpoint is a {host, port} listen address.
type Endpoint struct {
	Host string `toml:"host" yaml:"host" json:"host"`
	Port int    `toml:"port" yaml:"port" json:"port"`
}

// ListenerConfig is the LISTENER resource bundle: the main data-plane
// listener and the control-plane (API) listener.
type ListenerConfig struct {
	Main Endpoint `toml:"main" yaml:"main" json:"main"`
	API  Endpoint `toml:"api" yaml:"api" json:"api"`
}

// Clone returns a deep copy (trivial here — no reference fields).
func (l ListenerConfig) Clone() ListenerConfig { return l }

// HealthConfig controls the liveness/readiness short-circuit.
type HealthConfig struct {
	Enabled         bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	LivenessPath    string `toml:"liveness_path" yaml:"liveness_path" json:"liveness_path"`
	ReadinessPath   string `toml:"readiness_path" yaml:"readiness_path" json:"readiness_path"`
}

// RouteActionType discriminates the RouteAction sum type on the wire.
type RouteActionType string

const (
	ActionDir      RouteActionType = "dir"
	ActionFile     RouteActionType = "file"
	ActionRedirect RouteActionType = "redirect"
	ActionDirect   RouteActionType = "direct"
)

// RouteAction is a closed sum over {dir, file, redirect, direct},
// discriminated by Type. Only the fields relevant to Type are populated;
// the rest are zero values and must be ignored.
type RouteAction struct {
	Type RouteActionType `toml:"type" yaml:"type" json:"type"`

	// dir / file
	Path string `toml:"path,omitempty" yaml:"path,omitempty" json:"path,omitempty"`

	// redirect
	Target string `toml:"target,omitempty" yaml:"target,omitempty" json:"target,omitempty"`

	// redirect
	Code int `toml:"code,omitempty" yaml:"code,omitempty" json:"code,omitempty"`

	// direct
	Status      int    `toml:"status,omitempty" yaml:"status,omitempty" json:"status,omitempty"`
	Body        string `toml:"body,omitempty" yaml:"body,omitempty" json:"body,omitempty"`
	ContentType string `toml:"content_type,omitempty" yaml:"content_type,omitempty" json:"content_type,omitempty"`
}

func (a RouteAction) Clone() RouteAction { return a }

// HeaderMatchType discriminates how a HeaderMatch condition is evaluated.
type HeaderMatchType string

const (
	HeaderExact   HeaderMatchType = "exact"
	HeaderPrefix  HeaderMatchType = "prefix"
	HeaderPresent HeaderMatchType = "present"
)

// HeaderMatch is one header condition; all conditions on a Route must hold.
type HeaderMatch struct {
	Name  string          `toml:"name" yaml:"name" json:"name"`
	Type  HeaderMatchType `toml:"type" yaml:"type" json:"type"`
	Value string          `toml:"value,omitempty" yaml:"value,omitempty" json:"value,omitempty"`
}

// RouteMatch is a prefix-or-exact path predicate plus optional header
// conditions. Exactly one of Prefix/Path should be set.
type RouteMatch struct {
	Prefix  string        `toml:"prefix,omitempty" yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Path    string        `toml:"path,omitempty" yaml:"path,omitempty" json:"path,omitempty"`
	Headers []HeaderMatch `toml:"headers,omitempty" yaml:"headers,omitempty" json:"headers,omitempty"`
}

// Empty reports whether the match has neither a prefix nor an exact path —
// an invariant violation the VIRTUAL_HOST and ROUTE validators reject.
func (m RouteMatch) Empty() bool {
	return m.Prefix == "" && m.Path == ""
}

func (m RouteMatch) Clone() RouteMatch {
	cp := m
	if m.Headers != nil {
		cp.Headers = append([]HeaderMatch(nil), m.Headers...)
	}
	return cp
}

// Route pairs a match predicate with the action to take when it holds.
type Route struct {
	Name   string      `toml:"name,omitempty" yaml:"name,omitempty" json:"name,omitempty"`
	Match  RouteMatch  `toml:"match" yaml:"match" json:"match"`
	Action RouteAction `toml:"action" yaml:"action" json:"action"`
}

func (r Route) Clone() Route {
	return Route{Name: r.Name, Match: r.Match.Clone(), Action: r.Action.Clone()}
}

// VirtualHost is a named bundle of domain patterns and ordered routes,
// selected by the request's Host header.
type VirtualHost struct {
	Name       string   `toml:"name" yaml:"name" json:"name"`
	Domains    []string `toml:"domains" yaml:"domains" json:"domains"`
	Routes     []Route  `toml:"routes" yaml:"routes" json:"routes"`
	IndexFiles []string `toml:"index_files,omitempty" yaml:"index_files,omitempty" json:"index_files,omitempty"`
}

func (v VirtualHost) Clone() VirtualHost {
	cp := VirtualHost{Name: v.Name}
	cp.Domains = append([]string(nil), v.Domains...)
	cp.IndexFiles = append([]string(nil), v.IndexFiles...)
	cp.Routes = make([]Route, len(v.Routes))
	for i, r := range v.Routes {
		cp.Routes[i] = r.Clone()
	}
	return cp
}

// CustomRouteEntry is one path->RouteAction pair from the legacy ROUTE
// bundle's custom_routes mapping.
type CustomRouteEntry struct {
	Path   string      `json:"path"`
	Action RouteAction `json:"action"`
}

// CustomRoutes is an insertion-ordered path->RouteAction mapping. The wire
// shape (§3, §4.3) is a JSON object, but the matcher's longest-prefix tie
// break is defined in terms of insertion order (§4.4), which a plain Go
// map cannot preserve across a decode — so this keeps the entries in an
// ordered slice and marshals/unmarshals them as a JSON object itself.
type CustomRoutes []CustomRouteEntry

// Get returns the action for an exact path and whether it was present.
func (c CustomRoutes) Get(path string) (RouteAction, bool) {
	for _, e := range c {
		if e.Path == path {
			return e.Action, true
		}
	}
	return RouteAction{}, false
}

func (c CustomRoutes) Clone() CustomRoutes {
	cp := make(CustomRoutes, len(c))
	for i, e := range c {
		cp[i] = CustomRouteEntry{Path: e.Path, Action: e.Action.Clone()}
	}
	return cp
}

// MarshalJSON emits custom_routes as a plain JSON object, preserving
// insertion order (Go's encoding/json does not reorder object members on
// encode — only map keys get sorted, and this type is not a map).
func (c CustomRoutes) MarshalJSON() ([]byte, error) {
	var buf []byte
	buf = append(buf, '{')
	for i, e := range c {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(e.Path)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Action)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON decodes a JSON object into an ordered slice, preserving the
// member order as it appeared on the wire via token-by-token decoding.
func (c *CustomRoutes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("custom_routes: expected a JSON object")
	}
	var out CustomRoutes
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("custom_routes: expected string key")
		}
		var action RouteAction
		if err := dec.Decode(&action); err != nil {
			return fmt.Errorf("custom_routes[%q]: %w", key, err)
		}
		out = append(out, CustomRouteEntry{Path: key, Action: action})
	}
	*c = out
	return nil
}

// RoutesConfig is the legacy ROUTE resource bundle: ordered index files,
// a path->RouteAction mapping, health probe paths, and optional favicons.
type RoutesConfig struct {
	IndexFiles   []string     `toml:"index_files" yaml:"index_files" json:"index_files"`
	CustomRoutes CustomRoutes `toml:"custom_routes" yaml:"custom_routes" json:"custom_routes"`
	Health       HealthConfig `toml:"health" yaml:"health" json:"health"`
	FaviconPaths []string     `toml:"favicon_paths,omitempty" yaml:"favicon_paths,omitempty" json:"favicon_paths,omitempty"`
}

func (r RoutesConfig) Clone() RoutesConfig {
	cp := RoutesConfig{Health: r.Health}
	cp.IndexFiles = append([]string(nil), r.IndexFiles...)
	cp.FaviconPaths = append([]string(nil), r.FaviconPaths...)
	cp.CustomRoutes = r.CustomRoutes.Clone()
	return cp
}

// HTTPConfig is the HTTP resource bundle.
type HTTPConfig struct {
	DefaultContentType string `toml:"default_content_type" yaml:"default_content_type" json:"default_content_type"`
	ServerName         string `toml:"server_name" yaml:"server_name" json:"server_name"`
	EnableCORS         bool   `toml:"enable_cors" yaml:"enable_cors" json:"enable_cors"`
	MaxBodySize        int64  `toml:"max_body_size" yaml:"max_body_size" json:"max_body_size"`
}

func (h HTTPConfig) Clone() HTTPConfig { return h }

// LoggingConfig is the LOGGING resource bundle.
type LoggingConfig struct {
	Level           string `toml:"level" yaml:"level" json:"level"`
	AccessLog       bool   `toml:"access_log" yaml:"access_log" json:"access_log"`
	ShowHeaders     bool   `toml:"show_headers" yaml:"show_headers" json:"show_headers"`
	AccessLogFormat string `toml:"access_log_format" yaml:"access_log_format" json:"access_log_format"`
	AccessLogFile   string `toml:"access_log_file,omitempty" yaml:"access_log_file,omitempty" json:"access_log_file,omitempty"`
	ErrorLogFile    string `toml:"error_log_file,omitempty" yaml:"error_log_file,omitempty" json:"error_log_file,omitempty"`
}

func (l LoggingConfig) Clone() LoggingConfig { return l }

// PerformanceConfig is the PERFORMANCE resource bundle.
type PerformanceConfig struct {
	KeepAliveTimeout time.Duration `toml:"keep_alive_timeout" yaml:"keep_alive_timeout" json:"keep_alive_timeout"`
	ReadTimeout      time.Duration `toml:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout     time.Duration `toml:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	MaxConnections   int           `toml:"max_connections,omitempty" yaml:"max_connections,omitempty" json:"max_connections,omitempty"`
}

func (p PerformanceConfig) Clone() PerformanceConfig { return p }

// Snapshot is the single immutable unit the data plane reads. It is never
// mutated in place — see Registry for the atomic swap machinery.
type Snapshot struct {
	Listener     ListenerConfig    `json:"listener"`
	Routes       RoutesConfig      `json:"routes"`
	HTTP         HTTPConfig        `json:"http"`
	Logging      LoggingConfig     `json:"logging"`
	Performance  PerformanceConfig `json:"performance"`
	VirtualHosts []VirtualHost     `json:"virtual_hosts"`
}

// Clone returns a deep copy of the snapshot so a writer can apply a typed
// diff without affecting the version any reader currently holds.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return &Snapshot{}
	}
	cp := &Snapshot{
		Listener:    s.Listener.Clone(),
		Routes:      s.Routes.Clone(),
		HTTP:        s.HTTP.Clone(),
		Logging:     s.Logging.Clone(),
		Performance: s.Performance.Clone(),
	}
	cp.VirtualHosts = make([]VirtualHost, len(s.VirtualHosts))
	for i, vh := range s.VirtualHosts {
		cp.VirtualHosts[i] = vh.Clone()
	}
	return cp
}

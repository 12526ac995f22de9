// Package validate implements the per-resource-type structural and
// semantic checks the xDS endpoint runs on every POST body before
// publishing a new Snapshot. Every validator is a pure function: it
// never touches the registry, never logs, and returns either a decoded
// value or a *snapshot.NackError carrying the wire-ready error detail.
package validate

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/lhanjian/yarhs/internal/snapshot"
)

// nack builds a 400 NackError with a formatted message — every validator
// failure in this package is a structural/semantic error, never a version
// conflict (that NACK is issued by the registry, not here).
func nack(format string, args ...any) *snapshot.NackError {
	return &snapshot.NackError{Code: 400, Message: fmt.Sprintf(format, args...)}
}

// decodeFirst unmarshals resources[0] into T, enforcing the xDS-for-this-
// system convention that "multiple resources" means "one object wrapped
// for xDS compatibility" (§4.3).
func decodeFirst[T any](resources []json.RawMessage) (T, *snapshot.NackError) {
	var zero T
	if len(resources) == 0 {
		return zero, nack("resources must be a non-empty array")
	}
	var v T
	if err := json.Unmarshal(resources[0], &v); err != nil {
		return zero, nack("malformed resource: %v", err)
	}
	return v, nil
}

// Listener validates a LISTENER resource: ports in [1, 65535], hosts that
// parse as IPv4/IPv6/hostname.
func Listener(resources []json.RawMessage) (snapshot.ListenerConfig, *snapshot.NackError) {
	v, err := decodeFirst[snapshot.ListenerConfig](resources)
	if err != nil {
		return v, err
	}
	if nerr := validateEndpoint("main", v.Main); nerr != nil {
		return v, nerr
	}
	if nerr := validateEndpoint("api", v.API); nerr != nil {
		return v, nerr
	}
	return v, nil
}

func validateEndpoint(name string, ep snapshot.Endpoint) *snapshot.NackError {
	if ep.Port < 1 || ep.Port > 65535 {
		return nack("%s listener: port %d out of range [1, 65535]", name, ep.Port)
	}
	if !validHost(ep.Host) {
		return nack("%s listener: host %q is not a valid IPv4/IPv6/hostname", name, ep.Host)
	}
	return nil
}

func validHost(host string) bool {
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	// Hostname: RFC 1123-ish — labels of letters/digits/hyphens/underscores
	// separated by dots, no leading/trailing hyphen on a label.
	labels := strings.Split(host, ".")
	for _, l := range labels {
		if l == "" || strings.HasPrefix(l, "-") || strings.HasSuffix(l, "-") {
			return false
		}
		for _, c := range l {
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
				return false
			}
		}
	}
	return true
}

// Route validates a legacy ROUTE resource bundle: every custom_routes key
// begins with "/", every action's path is syntactically valid.
func Route(resources []json.RawMessage) (snapshot.RoutesConfig, *snapshot.NackError) {
	v, err := decodeFirst[snapshot.RoutesConfig](resources)
	if err != nil {
		return v, err
	}
	for _, entry := range v.CustomRoutes {
		if !strings.HasPrefix(entry.Path, "/") {
			return v, nack("custom_routes key %q must begin with \"/\"", entry.Path)
		}
		if nerr := validateAction(entry.Path, entry.Action); nerr != nil {
			return v, nerr
		}
	}
	return v, nil
}

func validateAction(context string, a snapshot.RouteAction) *snapshot.NackError {
	switch a.Type {
	case snapshot.ActionDir, snapshot.ActionFile:
		if a.Path == "" {
			return nack("%s: %s action requires a non-empty path", context, a.Type)
		}
		if strings.ContainsRune(a.Path, 0) {
			return nack("%s: path contains a NUL byte", context)
		}
	case snapshot.ActionRedirect:
		if a.Target == "" {
			return nack("%s: redirect action requires a non-empty target", context)
		}
	case snapshot.ActionDirect:
		if a.Status < 100 || a.Status > 599 {
			return nack("%s: direct action status %d is not a valid HTTP status", context, a.Status)
		}
	default:
		return nack("%s: unknown action type %q", context, a.Type)
	}
	return nil
}

// HTTP validates an HTTP resource bundle: max_body_size >= 0, server_name
// non-empty.
func HTTP(resources []json.RawMessage) (snapshot.HTTPConfig, *snapshot.NackError) {
	v, err := decodeFirst[snapshot.HTTPConfig](resources)
	if err != nil {
		return v, err
	}
	if v.MaxBodySize < 0 {
		return v, nack("max_body_size must be >= 0, got %d", v.MaxBodySize)
	}
	if strings.TrimSpace(v.ServerName) == "" {
		return v, nack("server_name must be non-empty")
	}
	return v, nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validAccessLogFormats = map[string]bool{
	"combined": true, "common": true, "json": true,
}

// Logging validates a LOGGING resource bundle: level is a known level,
// access_log_format is one of the known names or a custom pattern string
// containing at least one $variable.
func Logging(resources []json.RawMessage) (snapshot.LoggingConfig, *snapshot.NackError) {
	v, err := decodeFirst[snapshot.LoggingConfig](resources)
	if err != nil {
		return v, err
	}
	if !validLogLevels[v.Level] {
		return v, nack("level %q must be one of trace, debug, info, warn, error", v.Level)
	}
	if !validAccessLogFormats[v.AccessLogFormat] && !strings.Contains(v.AccessLogFormat, "$") {
		return v, nack("access_log_format %q must be combined, common, json, or a pattern containing $variable", v.AccessLogFormat)
	}
	return v, nil
}

// Performance validates a PERFORMANCE resource bundle: all timeouts >= 0,
// max_connections >= 1 when present (0 means "unset").
func Performance(resources []json.RawMessage) (snapshot.PerformanceConfig, *snapshot.NackError) {
	v, err := decodeFirst[snapshot.PerformanceConfig](resources)
	if err != nil {
		return v, err
	}
	if v.KeepAliveTimeout < 0 || v.ReadTimeout < 0 || v.WriteTimeout < 0 {
		return v, nack("timeouts must be >= 0")
	}
	if v.MaxConnections != 0 && v.MaxConnections < 1 {
		return v, nack("max_connections must be >= 1 when present, got %d", v.MaxConnections)
	}
	return v, nil
}

// VirtualHosts validates the VIRTUAL_HOST resource bundle: resources is
// non-empty, every host has a name and at least one domain, every route's
// match is non-empty, and every action tag is one of the four known
// variants.
//
// Unlike the other five validators, the wire value for this type is the
// whole ordered VirtualHost slice, so it decodes resources[0] as []VirtualHost
// rather than a single VirtualHost.
func VirtualHosts(resources []json.RawMessage) ([]snapshot.VirtualHost, *snapshot.NackError) {
	hosts, err := decodeFirst[[]snapshot.VirtualHost](resources)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, nack("virtual_hosts resource must be a non-empty array of hosts")
	}
	for _, h := range hosts {
		if strings.TrimSpace(h.Name) == "" {
			return nil, nack("virtual host name must be non-empty")
		}
		if len(h.Domains) == 0 {
			return nil, nack("virtual host %q must have at least one domain", h.Name)
		}
		for _, r := range h.Routes {
			if r.Match.Empty() {
				return nil, nack("virtual host %q: route %q has an empty match", h.Name, r.Name)
			}
			if nerr := validateAction(fmt.Sprintf("virtual host %q route %q", h.Name, r.Name), r.Action); nerr != nil {
				return nil, nerr
			}
		}
	}
	return hosts, nil
}

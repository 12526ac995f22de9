// Package match implements the request matcher: the priority chain
// (health probes -> virtual-host domain match -> route predicates ->
// legacy custom routes -> not found) that turns a request's
// host/method/path/headers into an Action the data plane dispatches.
package match

import (
	"net"
	"net/http"
	"strings"

	"github.com/lhanjian/yarhs/internal/snapshot"
)

// Kind discriminates the outcome of a match.
type Kind int

const (
	KindHealth Kind = iota
	KindServeDir
	KindServeFile
	KindRedirect
	KindDirect
	KindNotFound
)

// Action is what the data plane should do for a matched request.
type Action struct {
	Kind Kind

	// KindServeDir / KindServeFile
	Root       string   // directory root (dir) or exact file (file)
	ServePath  string   // path relative to Root to resolve (dir only)
	IndexFiles []string // directory index candidates, in order

	// KindRedirect
	RedirectTarget string
	RedirectCode   int

	// KindDirect
	DirectStatus      int
	DirectBody        string
	DirectContentType string

	// KindHealth
	HealthPath string
}

// Request is the subset of an inbound request the matcher needs. Kept
// decoupled from net/http.Request so the matcher is trivially unit
// testable without spinning up a server.
type Request struct {
	Host    string
	Method  string
	Path    string
	Headers http.Header
}

// Match runs the full priority chain against snap and returns the
// resulting Action.
func Match(snap *snapshot.Snapshot, req Request) Action {
	if a, ok := matchHealth(snap, req.Path); ok {
		return a
	}

	if len(snap.VirtualHosts) > 0 {
		if vh, ok := bestVirtualHost(snap.VirtualHosts, req.Host); ok {
			if a, ok := matchRoutesInHost(vh, req); ok {
				return a
			}
			return Action{Kind: KindNotFound}
		}
		// No vhost matched (and no catch-all exists, since bestVirtualHost
		// would have returned the catch-all otherwise) — fall through.
	}

	if a, ok := matchLegacyRoutes(snap.Routes, req.Path); ok {
		return a
	}

	return Action{Kind: KindNotFound}
}

func matchHealth(snap *snapshot.Snapshot, path string) (Action, bool) {
	h := snap.Routes.Health
	if !h.Enabled {
		return Action{}, false
	}
	if path == h.LivenessPath || path == h.ReadinessPath {
		return Action{Kind: KindHealth, HealthPath: path}, true
	}
	return Action{}, false
}

// bestVirtualHost resolves the host header to the best-matching
// VirtualHost using exact > wildcard(*.suffix) > catch-all(*) precedence;
// within the wildcard tier, the longest matching suffix wins; ties at
// equal specificity resolve to the first virtual host/domain by
// insertion order.
func bestVirtualHost(hosts []snapshot.VirtualHost, hostHeader string) (snapshot.VirtualHost, bool) {
	host := normalizeHost(hostHeader)

	for _, vh := range hosts {
		for _, d := range vh.Domains {
			if strings.EqualFold(d, host) {
				return vh, true
			}
		}
	}

	var (
		bestVH     snapshot.VirtualHost
		bestSuffix string
		found      bool
	)
	for _, vh := range hosts {
		for _, d := range vh.Domains {
			if !strings.HasPrefix(d, "*.") {
				continue
			}
			suffix := d[1:] // ".suffix"
			if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
				if !found || len(suffix) > len(bestSuffix) {
					bestVH, bestSuffix, found = vh, suffix, true
				}
			}
		}
	}
	if found {
		return bestVH, true
	}

	for _, vh := range hosts {
		for _, d := range vh.Domains {
			if d == "*" {
				return vh, true
			}
		}
	}

	return snapshot.VirtualHost{}, false
}

func normalizeHost(h string) string {
	if host, _, err := net.SplitHostPort(h); err == nil {
		return host
	}
	return h
}

func matchRoutesInHost(vh snapshot.VirtualHost, req Request) (Action, bool) {
	for _, r := range vh.Routes {
		if routeMatches(r.Match, req.Path, req.Headers) {
			return actionFor(r.Action, vh.IndexFiles), true
		}
	}
	return Action{}, false
}

func routeMatches(m snapshot.RouteMatch, path string, headers http.Header) bool {
	switch {
	case m.Prefix != "":
		if !(path == m.Prefix || strings.HasPrefix(path, m.Prefix+"/")) {
			return false
		}
	case m.Path != "":
		if path != m.Path {
			return false
		}
	default:
		return false
	}
	for _, h := range m.Headers {
		if !headerMatches(h, headers) {
			return false
		}
	}
	return true
}

func headerMatches(h snapshot.HeaderMatch, headers http.Header) bool {
	values := headers.Values(h.Name)
	switch h.Type {
	case snapshot.HeaderPresent:
		return len(values) > 0
	case snapshot.HeaderExact:
		for _, v := range values {
			if v == h.Value {
				return true
			}
		}
		return false
	case snapshot.HeaderPrefix:
		for _, v := range values {
			if strings.HasPrefix(v, h.Value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// matchLegacyRoutes implements the two-pass legacy custom_routes scan:
// (a) exact-match entries whose key equals path, then (b) directory
// entries whose key is a prefix of path, longest prefix winning with
// insertion-order tie-break.
func matchLegacyRoutes(routes snapshot.RoutesConfig, path string) (Action, bool) {
	if action, ok := routes.CustomRoutes.Get(path); ok {
		return actionFor(action, routes.IndexFiles), true
	}

	var (
		bestAction snapshot.RouteAction
		bestPrefix string
		found      bool
	)
	for _, entry := range routes.CustomRoutes {
		if entry.Action.Type != snapshot.ActionDir {
			continue
		}
		prefix := entry.Path
		if !strings.HasPrefix(path, dirPrefixSlash(prefix)) {
			continue
		}
		if !found || len(prefix) > len(bestPrefix) {
			bestAction, bestPrefix, found = entry.Action, prefix, true
		}
	}
	if !found {
		return Action{}, false
	}

	served := strings.TrimPrefix(path, strings.TrimSuffix(bestPrefix, "/"))
	if served == "" {
		served = "/"
	}
	return Action{
		Kind:       KindServeDir,
		Root:       bestAction.Path,
		ServePath:  served,
		IndexFiles: routes.IndexFiles,
	}, true
}

// dirPrefixSlash normalizes a custom_routes directory key to always end
// in "/" so prefix matching never confuses "/docs" with "/docsomething".
func dirPrefixSlash(prefix string) string {
	if strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

func actionFor(a snapshot.RouteAction, indexFiles []string) Action {
	switch a.Type {
	case snapshot.ActionDir:
		return Action{Kind: KindServeDir, Root: a.Path, ServePath: "/", IndexFiles: indexFiles}
	case snapshot.ActionFile:
		return Action{Kind: KindServeFile, Root: a.Path}
	case snapshot.ActionRedirect:
		code := a.Code
		if code == 0 {
			code = 302
		}
		return Action{Kind: KindRedirect, RedirectTarget: a.Target, RedirectCode: code}
	case snapshot.ActionDirect:
		ct := a.ContentType
		if ct == "" {
			ct = "text/plain"
		}
		return Action{Kind: KindDirect, DirectStatus: a.Status, DirectBody: a.Body, DirectContentType: ct}
	default:
		return Action{Kind: KindNotFound}
	}
}

package match

import (
	"net/http"
	"testing"

	"github.com/lhanjian/yarhs/internal/snapshot"
)

func baseSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Routes: snapshot.RoutesConfig{
			IndexFiles: []string{"index.html"},
			Health: snapshot.HealthConfig{
				Enabled:       true,
				LivenessPath:  "/healthz",
				ReadinessPath: "/readyz",
			},
		},
	}
}

func TestMatchHealthShortCircuits(t *testing.T) {
	snap := baseSnapshot()
	a := Match(snap, Request{Host: "example.com", Method: http.MethodGet, Path: "/healthz"})
	if a.Kind != KindHealth {
		t.Fatalf("got %v, want KindHealth", a.Kind)
	}
}

func TestMatchVirtualHostExactBeatsWildcard(t *testing.T) {
	snap := baseSnapshot()
	snap.VirtualHosts = []snapshot.VirtualHost{
		{
			Name:    "wildcard",
			Domains: []string{"*.example.com"},
			Routes: []snapshot.Route{
				{Match: snapshot.RouteMatch{Prefix: "/"}, Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 200, Body: "wildcard"}},
			},
		},
		{
			Name:    "exact",
			Domains: []string{"api.example.com"},
			Routes: []snapshot.Route{
				{Match: snapshot.RouteMatch{Prefix: "/"}, Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 200, Body: "exact"}},
			},
		},
	}

	a := Match(snap, Request{Host: "api.example.com", Method: http.MethodGet, Path: "/"})
	if a.Kind != KindDirect || a.DirectBody != "exact" {
		t.Fatalf("got %+v, want exact vhost match", a)
	}
}

func TestMatchVirtualHostLongestWildcardSuffixWins(t *testing.T) {
	snap := baseSnapshot()
	snap.VirtualHosts = []snapshot.VirtualHost{
		{
			Name:    "short",
			Domains: []string{"*.com"},
			Routes: []snapshot.Route{
				{Match: snapshot.RouteMatch{Prefix: "/"}, Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 200, Body: "short"}},
			},
		},
		{
			Name:    "long",
			Domains: []string{"*.example.com"},
			Routes: []snapshot.Route{
				{Match: snapshot.RouteMatch{Prefix: "/"}, Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 200, Body: "long"}},
			},
		},
	}

	a := Match(snap, Request{Host: "api.example.com", Method: http.MethodGet, Path: "/"})
	if a.Kind != KindDirect || a.DirectBody != "long" {
		t.Fatalf("got %+v, want longest-suffix wildcard match", a)
	}
}

func TestMatchVirtualHostCatchAll(t *testing.T) {
	snap := baseSnapshot()
	snap.VirtualHosts = []snapshot.VirtualHost{
		{
			Name:    "catchall",
			Domains: []string{"*"},
			Routes: []snapshot.Route{
				{Match: snapshot.RouteMatch{Prefix: "/"}, Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 200, Body: "caught"}},
			},
		},
	}

	a := Match(snap, Request{Host: "unknown.invalid", Method: http.MethodGet, Path: "/"})
	if a.Kind != KindDirect || a.DirectBody != "caught" {
		t.Fatalf("got %+v, want catch-all match", a)
	}
}

func TestMatchVirtualHostMatchedButNoRouteIs404(t *testing.T) {
	snap := baseSnapshot()
	snap.VirtualHosts = []snapshot.VirtualHost{
		{
			Name:    "empty",
			Domains: []string{"example.com"},
			Routes: []snapshot.Route{
				{Match: snapshot.RouteMatch{Path: "/only"}, Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 200, Body: "only"}},
			},
		},
	}

	a := Match(snap, Request{Host: "example.com", Method: http.MethodGet, Path: "/missing"})
	if a.Kind != KindNotFound {
		t.Fatalf("got %v, want KindNotFound (vhost matched, no route did)", a.Kind)
	}
}

func TestMatchHeaderPredicate(t *testing.T) {
	snap := baseSnapshot()
	snap.VirtualHosts = []snapshot.VirtualHost{
		{
			Name:    "api",
			Domains: []string{"example.com"},
			Routes: []snapshot.Route{
				{
					Match: snapshot.RouteMatch{
						Prefix:  "/api",
						Headers: []snapshot.HeaderMatch{{Name: "X-Beta", Type: snapshot.HeaderPresent}},
					},
					Action: snapshot.RouteAction{Type: snapshot.ActionDirect, Status: 200, Body: "beta"},
				},
			},
		},
	}

	req := Request{Host: "example.com", Method: http.MethodGet, Path: "/api/v1", Headers: http.Header{}}
	if a := Match(snap, req); a.Kind == KindDirect {
		t.Fatalf("expected no match without header, got %+v", a)
	}

	req.Headers = http.Header{"X-Beta": []string{"1"}}
	a := Match(snap, req)
	if a.Kind != KindDirect || a.DirectBody != "beta" {
		t.Fatalf("got %+v, want header-gated match", a)
	}
}

func TestMatchLegacyRoutesExactBeatsDirectory(t *testing.T) {
	snap := baseSnapshot()
	snap.Routes.CustomRoutes = snapshot.CustomRoutes{
		{Path: "/docs", Action: snapshot.RouteAction{Type: snapshot.ActionDir, Path: "/srv/docs"}},
		{Path: "/docs/special", Action: snapshot.RouteAction{Type: snapshot.ActionFile, Path: "/srv/special.html"}},
	}

	a := Match(snap, Request{Host: "example.com", Method: http.MethodGet, Path: "/docs/special"})
	if a.Kind != KindServeFile || a.Root != "/srv/special.html" {
		t.Fatalf("got %+v, want exact file match to win over directory prefix", a)
	}
}

func TestMatchLegacyRoutesLongestPrefixWins(t *testing.T) {
	snap := baseSnapshot()
	snap.Routes.CustomRoutes = snapshot.CustomRoutes{
		{Path: "/a", Action: snapshot.RouteAction{Type: snapshot.ActionDir, Path: "/srv/a"}},
		{Path: "/a/b", Action: snapshot.RouteAction{Type: snapshot.ActionDir, Path: "/srv/ab"}},
	}

	a := Match(snap, Request{Host: "example.com", Method: http.MethodGet, Path: "/a/b/c.txt"})
	if a.Kind != KindServeDir || a.Root != "/srv/ab" {
		t.Fatalf("got %+v, want longest-prefix directory match", a)
	}
	if a.ServePath != "/c.txt" {
		t.Fatalf("ServePath = %q, want /c.txt", a.ServePath)
	}
}

func TestMatchFallsThroughToNotFound(t *testing.T) {
	snap := baseSnapshot()
	a := Match(snap, Request{Host: "example.com", Method: http.MethodGet, Path: "/nope"})
	if a.Kind != KindNotFound {
		t.Fatalf("got %v, want KindNotFound", a.Kind)
	}
}

package snapshot

import "dario.cat/mergo"

// Apply* functions implement the writer's clone-then-apply step (spec
// §4.1, step 2): given a deep clone of the current snapshot and a freshly
// validated resource value, they return the next snapshot to publish.
// Callers (internal/xds) are responsible for cloning prev via prev.Clone()
// first and for validating the resource before calling these.

// ApplyListener wholesale-replaces the LISTENER bundle. A listener change
// is never merged — the POST payload is the complete new value.
func ApplyListener(next *Snapshot, v ListenerConfig) *Snapshot {
	next.Listener = v
	return next
}

// ApplyRoutes wholesale-replaces the legacy ROUTE bundle.
func ApplyRoutes(next *Snapshot, v RoutesConfig) *Snapshot {
	next.Routes = v
	return next
}

// ApplyVirtualHosts wholesale-replaces the ordered VirtualHost sequence.
func ApplyVirtualHosts(next *Snapshot, v []VirtualHost) *Snapshot {
	next.VirtualHosts = v
	return next
}

// ApplyHTTP merges the posted HTTP bundle onto the previous one:
// non-zero fields in v override the prior value, fields v leaves zero
// (omitted by a partial POST) keep whatever the snapshot already had.
// ApplyLogging and ApplyPerformance merge the same way; the LISTENER,
// ROUTE and VIRTUAL_HOST payloads are always the complete object, so
// those bundles are wholesale-replaced instead.
func ApplyHTTP(next *Snapshot, v HTTPConfig) *Snapshot {
	merged := next.HTTP
	_ = mergo.Merge(&merged, v, mergo.WithOverride)
	next.HTTP = merged
	return next
}

// ApplyLogging merges the posted LOGGING bundle; see ApplyHTTP.
func ApplyLogging(next *Snapshot, v LoggingConfig) *Snapshot {
	merged := next.Logging
	_ = mergo.Merge(&merged, v, mergo.WithOverride)
	next.Logging = merged
	return next
}

// ApplyPerformance merges the posted PERFORMANCE bundle; see ApplyHTTP.
func ApplyPerformance(next *Snapshot, v PerformanceConfig) *Snapshot {
	merged := next.Performance
	_ = mergo.Merge(&merged, v, mergo.WithOverride)
	next.Performance = merged
	return next
}

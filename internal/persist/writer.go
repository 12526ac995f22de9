// Package persist implements the optional state-persistence writer: every
// accepted xDS write (other than LISTENER) is mirrored to a YAML file on
// disk, so a restart can reseed the registry from the last known-good
// configuration instead of falling back to the startup TOML alone.
package persist

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lhanjian/yarhs/internal/snapshot"
)

// document is the on-disk shape — deliberately excludes Listener, since a
// persisted listener bind would fight the next process's own startup
// bind instead of being restored by it.
type document struct {
	Routes       snapshot.RoutesConfig      `yaml:"routes"`
	HTTP         snapshot.HTTPConfig        `yaml:"http"`
	Logging      snapshot.LoggingConfig     `yaml:"logging"`
	Performance  snapshot.PerformanceConfig `yaml:"performance"`
	VirtualHosts []snapshot.VirtualHost     `yaml:"virtual_hosts"`
}

// Writer persists snapshots to a YAML file, one full rewrite per publish.
// Rewriting the whole document (rather than patching the changed bundle)
// keeps the on-disk state trivially consistent with what Load will
// produce, at the cost of a write on every publish regardless of which
// resource type changed.
type Writer struct {
	path string
	log  *slog.Logger
}

func NewWriter(path string, log *slog.Logger) *Writer {
	return &Writer{path: path, log: log}
}

// OnPublish is suitable for registration via Registry.OnPublish: it
// ignores the resource type argument and persists the full snapshot
// (minus Listener) on every accepted write.
func (w *Writer) OnPublish(_ snapshot.ResourceType, snap *snapshot.Snapshot) {
	if err := w.Save(snap); err != nil {
		w.log.Error("persisting snapshot failed", "path", w.path, "error", err)
	}
}

// Save writes snap to the configured path, replacing any previous
// contents. It writes to a temp file first and renames into place so a
// crash mid-write never leaves a truncated document behind.
func (w *Writer) Save(snap *snapshot.Snapshot) error {
	doc := document{
		Routes:       snap.Routes,
		HTTP:         snap.HTTP,
		Logging:      snap.Logging,
		Performance:  snap.Performance,
		VirtualHosts: snap.VirtualHosts,
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling persisted state: %w", err)
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, w.path, err)
	}
	return nil
}

// Load reads a previously persisted document, if present. A missing file
// is not an error — it means this is a fresh deployment with no prior
// state to restore.
func Load(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &doc, nil
}

// ApplyTo overlays a loaded document onto a base snapshot (normally the
// one just decoded from the startup TOML), returning the snapshot the
// registry should actually seed with. The Listener bundle always comes
// from base, never from doc.
func ApplyTo(base *snapshot.Snapshot, doc *document) *snapshot.Snapshot {
	if doc == nil {
		return base
	}
	next := base.Clone()
	next.Routes = doc.Routes
	next.HTTP = doc.HTTP
	next.Logging = doc.Logging
	next.Performance = doc.Performance
	next.VirtualHosts = doc.VirtualHosts
	return next
}

// Package fileserver implements the static file response engine: path
// resolution, MIME detection, strong ETag, Last-Modified, conditional
// requests, byte-range requests, and HEAD semantics (spec §4.5). OPTIONS
// is answered by internal/dataplane before a file is ever resolved.
package fileserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lhanjian/yarhs/internal/match"
)

// Error classifies a file-responder failure so the caller can pick the
// right HTTP status without re-deriving it from an os.Is* check.
type Error struct {
	Status int
	Msg    string
}

func (e *Error) Error() string { return e.Msg }

var (
	errNotFound  = &Error{Status: http.StatusNotFound, Msg: "not found"}
	errForbidden = &Error{Status: http.StatusForbidden, Msg: "forbidden"}
)

// Responder resolves match.Actions of kind ServeDir/ServeFile against the
// local filesystem and writes the HTTP response.
type Responder struct {
	// WorkDir is the base relative paths resolve against. Empty means the
	// process working directory.
	WorkDir string
}

func NewResponder(workDir string) *Responder {
	return &Responder{WorkDir: workDir}
}

// Resolve finds the on-disk file to serve for a ServeDir/ServeFile action,
// trying index files in order for directory targets. It never touches the
// ResponseWriter — callers get a plain (path, error) back so 403 is
// returned without a stat, exactly as §4.5 requires.
func (r *Responder) Resolve(a match.Action) (string, error) {
	switch a.Kind {
	case match.KindServeFile:
		abs := r.abs(a.Root)
		return abs, nil

	case match.KindServeDir:
		root := r.abs(a.Root)
		target, err := joinWithinRoot(root, a.ServePath)
		if err != nil {
			return "", errForbidden
		}
		info, err := os.Stat(target)
		if err != nil {
			return "", errNotFound
		}
		if !info.IsDir() {
			return target, nil
		}
		for _, idx := range a.IndexFiles {
			candidate, err := joinWithinRoot(root, filepath.Join(pathTrim(a.ServePath), idx))
			if err != nil {
				continue
			}
			if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
				return candidate, nil
			}
		}
		return "", errNotFound

	default:
		return "", errNotFound
	}
}

func pathTrim(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func (r *Responder) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	base := r.WorkDir
	if base == "" {
		base = "."
	}
	return filepath.Clean(filepath.Join(base, p))
}

// joinWithinRoot joins root and servePath and verifies the canonical
// result still lies within root, rejecting any attempt to escape via ".."
// segments. servePath is treated as an absolute path inside root, so a
// leading "/" is implied regardless of what the caller passes.
func joinWithinRoot(root, servePath string) (string, error) {
	target := filepath.Join(root, servePath)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", errForbidden
	}
	return target, nil
}

// ServeHTTP writes the full static-file response for path (as resolved by
// Resolve) following §4.5: MIME, ETag, Last-Modified, Cache-Control,
// conditional requests, byte ranges, and HEAD. defaultContentType is the
// current http.default_content_type, read fresh from the snapshot on
// every call since it can change at runtime.
func (r *Responder) ServeHTTP(w http.ResponseWriter, req *http.Request, path, defaultContentType string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errNotFound
		}
		return &Error{Status: http.StatusInternalServerError, Msg: err.Error()}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &Error{Status: http.StatusInternalServerError, Msg: err.Error()}
	}
	if info.IsDir() {
		return errNotFound
	}

	etag := strongETag(info)
	lastModified := info.ModTime().Truncate(time.Second)

	h := w.Header()
	h.Set("Content-Type", contentType(path, defaultContentType))
	h.Set("ETag", etag)
	h.Set("Last-Modified", lastModified.Format(http.TimeFormat))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "public, max-age=3600")

	if ifNoneMatch := req.Header.Get("If-None-Match"); ifNoneMatch != "" {
		if etagMatches(ifNoneMatch, etag) {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}
	} else if ims := req.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && !lastModified.After(t) {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}
	}

	size := info.Size()
	rangeHeader := req.Header.Get("Range")
	if rangeHeader != "" && req.Method != http.MethodPost {
		br, err := parseRange(rangeHeader, size)
		var rerr *rangeError
		if errors.As(err, &rerr) {
			h.Set("Content-Range", rerr.ContentRange)
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return nil
		}
		if err == nil {
			h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, size))
			h.Set("Content-Length", fmt.Sprintf("%d", br.length()))
			w.WriteHeader(http.StatusPartialContent)
			if req.Method == http.MethodHead {
				return nil
			}
			sr := io.NewSectionReader(f, br.start, br.length())
			_, werr := io.Copy(w, sr)
			return werr
		}
		// Malformed Range header: ignore it and fall through to a full 200.
	}

	h.Set("Content-Length", fmt.Sprintf("%d", size))
	w.WriteHeader(http.StatusOK)
	if req.Method == http.MethodHead {
		return nil
	}
	_, werr := io.Copy(w, f)
	return werr
}

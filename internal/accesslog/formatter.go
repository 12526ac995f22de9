// Package accesslog implements the access-log formatter spec.md §1 calls
// an external collaborator: the core only needs to hand it
// (request, status, size, duration) after every response; the formatting
// itself (combined/common/json/custom pattern) lives entirely here.
package accesslog

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is one access-log record — decoupled from net/http.Request so
// formatters stay trivially testable.
type Entry struct {
	RemoteAddr string
	Method     string
	Path       string
	Proto      string
	Status     int
	Size       int64
	Duration   time.Duration
	Referer    string
	UserAgent  string
	Host       string
	Time       time.Time
}

// EntryFromRequest builds an Entry from a live request/response pair.
func EntryFromRequest(req *http.Request, status int, size int64, dur time.Duration) Entry {
	return Entry{
		RemoteAddr: req.RemoteAddr,
		Method:     req.Method,
		Path:       req.URL.RequestURI(),
		Proto:      req.Proto,
		Status:     status,
		Size:       size,
		Duration:   dur,
		Referer:    req.Referer(),
		UserAgent:  req.UserAgent(),
		Host:       req.Host,
		Time:       time.Now(),
	}
}

// Logger writes access-log entries in the configured format. It wraps a
// *logrus.Logger the way the contour example repos wrap logrus for
// structured request logging, swapping in one of three built-in
// logrus.Formatter implementations (or a custom-pattern formatter) based
// on logging.access_log_format.
type Logger struct {
	logger *logrus.Logger
}

// NewLogger builds a Logger writing to out in the given format: one of
// "combined", "common", "json", or a custom pattern string containing at
// least one "$variable" token (validated by internal/validate before it
// ever reaches here).
func NewLogger(format string, out io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)

	switch format {
	case "combined":
		l.SetFormatter(&apacheFormatter{withRefererAndAgent: true})
	case "common":
		l.SetFormatter(&apacheFormatter{withRefererAndAgent: false})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		l.SetFormatter(&patternFormatter{pattern: format})
	}

	return &Logger{logger: l}
}

// Log writes one access-log record.
func (l *Logger) Log(e Entry) {
	l.logger.WithFields(logrus.Fields{
		"remote_addr": e.RemoteAddr,
		"method":      e.Method,
		"path":        e.Path,
		"proto":       e.Proto,
		"status":      e.Status,
		"size":        e.Size,
		"duration_ms": e.Duration.Milliseconds(),
		"referer":     e.Referer,
		"user_agent":  e.UserAgent,
		"host":        e.Host,
		"time":        e.Time,
	}).Info("")
}

// apacheFormatter renders entries in Apache combined/common log format:
//
//	combined: %h - - [%t] "%r" %>s %b "%{Referer}i" "%{User-agent}i"
//	common:   %h - - [%t] "%r" %>s %b
type apacheFormatter struct {
	withRefererAndAgent bool
}

func (f *apacheFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	t, _ := entry.Data["time"].(time.Time)
	if t.IsZero() {
		t = entry.Time
	}
	fmt.Fprintf(&b, "%s - - [%s] \"%s %s %s\" %s %s",
		str(entry.Data["remote_addr"]),
		t.Format("02/Jan/2006:15:04:05 -0700"),
		str(entry.Data["method"]),
		str(entry.Data["path"]),
		str(entry.Data["proto"]),
		strconv.Itoa(intOf(entry.Data["status"])),
		strconv.FormatInt(int64Of(entry.Data["size"]), 10),
	)
	if f.withRefererAndAgent {
		fmt.Fprintf(&b, " %q %q", str(entry.Data["referer"]), str(entry.Data["user_agent"]))
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// patternFormatter substitutes $variable tokens in a custom pattern
// string with the corresponding entry field, e.g.
// "$remote_addr - $status $size".
type patternFormatter struct {
	pattern string
}

func (f *patternFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	out := f.pattern
	for key, val := range entry.Data {
		out = strings.ReplaceAll(out, "$"+key, fmt.Sprintf("%v", val))
	}
	out += "\n"
	return []byte(out), nil
}

func str(v any) string {
	if v == nil {
		return "-"
	}
	s := fmt.Sprintf("%v", v)
	if s == "" {
		return "-"
	}
	return s
}

func intOf(v any) int {
	if i, ok := v.(int); ok {
		return i
	}
	return 0
}

func int64Of(v any) int64 {
	if i, ok := v.(int64); ok {
		return i
	}
	if i, ok := v.(int); ok {
		return int64(i)
	}
	return 0
}

// Package config loads the startup configuration: a TOML file shaped
// like the six resource bundles (so the very first Snapshot a fresh
// process boots with is just "what was on disk"), plus the handful of
// process-level settings that live outside any bundle — where to persist
// state, a metrics address, and the log level.
package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kingpin/v2"

	"github.com/lhanjian/yarhs/internal/snapshot"
)

// Process holds settings that never go through the xDS endpoint — they
// are fixed for the lifetime of the process.
type Process struct {
	ConfigPath  string `toml:"-"`
	PersistPath string `toml:"persist_path"`
	// MetricsAddr is decoded but nothing binds to it: metrics are served
	// at /metrics on the control-plane listener.
	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`
}

// File is the on-disk TOML shape: one table per resource bundle plus the
// [process] table. Field names mirror internal/snapshot's JSON tags so
// the same document could, in principle, be round-tripped through the
// xDS endpoint.
type File struct {
	Process      Process                    `toml:"process"`
	Listener     snapshot.ListenerConfig    `toml:"listener"`
	Routes       snapshot.RoutesConfig      `toml:"routes"`
	HTTP         snapshot.HTTPConfig        `toml:"http"`
	Logging      snapshot.LoggingConfig     `toml:"logging"`
	Performance  snapshot.PerformanceConfig `toml:"performance"`
	VirtualHosts []snapshot.VirtualHost     `toml:"virtual_hosts"`
}

// Defaults returns a File with every field populated sensibly, so a
// config file only needs to override what it cares about.
func Defaults() File {
	return File{
		Process: Process{
			PersistPath: "",
			MetricsAddr: ":9100",
			LogLevel:    "info",
		},
		Listener: snapshot.ListenerConfig{
			Main: snapshot.Endpoint{Host: "0.0.0.0", Port: 8080},
			API:  snapshot.Endpoint{Host: "127.0.0.1", Port: 8081},
		},
		Routes: snapshot.RoutesConfig{
			IndexFiles: []string{"index.html"},
			Health: snapshot.HealthConfig{
				Enabled:       true,
				LivenessPath:  "/healthz",
				ReadinessPath: "/readyz",
			},
		},
		HTTP: snapshot.HTTPConfig{
			DefaultContentType: "application/octet-stream",
			ServerName:         "yarhs",
		},
		Logging: snapshot.LoggingConfig{
			Level:           "info",
			AccessLog:       true,
			AccessLogFormat: "combined",
		},
		Performance: snapshot.PerformanceConfig{
			KeepAliveTimeout: 0,
			ReadTimeout:      0,
			WriteTimeout:     0,
		},
	}
}

// Load reads and decodes a TOML file at path on top of Defaults — any
// table or key the file omits keeps its default value.
func Load(path string) (*File, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	cfg.Process.ConfigPath = path
	return &cfg, nil
}

// Snapshot builds the initial snapshot.Snapshot the registry should seed
// with from the decoded bundles.
func (f *File) Snapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Listener:     f.Listener,
		Routes:       f.Routes,
		HTTP:         f.HTTP,
		Logging:      f.Logging,
		Performance:  f.Performance,
		VirtualHosts: f.VirtualHosts,
	}
}

// Flags describes the command-line surface, parsed via kingpin the way
// the rest of the pack's CLIs do: a small, explicit set of flags layered
// on top of the TOML file rather than replacing it. XDSAddr and LogLevel
// are empty when not passed, meaning "keep whatever the TOML file says".
type Flags struct {
	ConfigPath string
	XDSAddr    string
	LogLevel   string
}

// ParseFlags parses argv (normally os.Args[1:]) into Flags.
func ParseFlags(argv []string) (*Flags, error) {
	app := kingpin.New("yarhs", "A dynamically reconfigurable HTTP edge server.")
	configPath := app.Flag("config", "Path to the TOML startup configuration file.").
		Short('c').Default("yarhs.toml").String()
	xdsAddr := app.Flag("xds-addr", "Override the control-plane (xDS) listen address, host:port.").String()
	logLevel := app.Flag("log-level", "Override the process log level (debug, info, warn, error).").String()

	if _, err := app.Parse(argv); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	return &Flags{ConfigPath: *configPath, XDSAddr: *xdsAddr, LogLevel: *logLevel}, nil
}

// ApplyFlags layers non-empty CLI overrides onto a loaded File, giving
// flags priority over the TOML file's [process] table and [listener.api].
func (f *File) ApplyFlags(flags *Flags) error {
	if flags.LogLevel != "" {
		f.Process.LogLevel = flags.LogLevel
	}
	if flags.XDSAddr != "" {
		host, portStr, err := net.SplitHostPort(flags.XDSAddr)
		if err != nil {
			return fmt.Errorf("invalid --xds-addr %q: %w", flags.XDSAddr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --xds-addr %q: port must be numeric: %w", flags.XDSAddr, err)
		}
		f.Listener.API = snapshot.Endpoint{Host: host, Port: port}
	}
	return nil
}

// Command yarhs runs the dynamically reconfigurable HTTP edge server: a
// data-plane listener serving static files, routes, and virtual hosts,
// and a control-plane listener exposing the xDS-style discovery endpoint
// that reconfigures the data plane without a restart.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/lhanjian/yarhs/internal/accesslog"
	"github.com/lhanjian/yarhs/internal/config"
	"github.com/lhanjian/yarhs/internal/dataplane"
	"github.com/lhanjian/yarhs/internal/fileserver"
	"github.com/lhanjian/yarhs/internal/listener"
	"github.com/lhanjian/yarhs/internal/metrics"
	"github.com/lhanjian/yarhs/internal/persist"
	"github.com/lhanjian/yarhs/internal/snapshot"
	"github.com/lhanjian/yarhs/internal/xds"
)

// fallbackDrainTimeout is used only when a snapshot carries a zero
// keep_alive_timeout (e.g. before the first PERFORMANCE bundle is ever
// applied).
const fallbackDrainTimeout = 15 * time.Second

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "maxprocs: %v\n", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := run(log); err != nil {
		log.Error("yarhs exited with error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	file, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := file.ApplyFlags(flags); err != nil {
		return fmt.Errorf("applying flag overrides: %w", err)
	}
	log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(file.Process.LogLevel)})).
		With("config_path", flags.ConfigPath)

	initial := file.Snapshot()
	if file.Process.PersistPath != "" {
		doc, err := persist.Load(file.Process.PersistPath)
		if err != nil {
			log.Warn("failed to load persisted state, starting from config only", "error", err)
		} else if doc != nil {
			initial = persist.ApplyTo(initial, doc)
			log.Info("restored persisted state", "path", file.Process.PersistPath)
		}
	}

	reg := snapshot.New(initial)

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	reg.OnPublish(func(_ snapshot.ResourceType, snap *snapshot.Snapshot) {
		m.SetSnapshotVersion(reg.Versions().CurrentVersion())
	})
	m.SetSnapshotVersion(reg.Versions().CurrentVersion())

	if file.Process.PersistPath != "" {
		writer := persist.NewWriter(file.Process.PersistPath, log)
		reg.OnPublish(writer.OnPublish)
	}

	responder := fileserver.NewResponder("")

	var accessLogger *accesslog.Logger
	if initial.Logging.AccessLog {
		accessLogger = accesslog.NewLogger(initial.Logging.AccessLogFormat, os.Stdout)
	}

	dp := dataplane.New(reg, responder, log)
	dp.Metrics = m
	dp.AccessLog = func(req *http.Request, status int, snap *snapshot.Snapshot) {
		if accessLogger == nil || !snap.Logging.AccessLog {
			return
		}
		accessLogger.Log(accesslog.EntryFromRequest(req, status, 0, 0))
	}
	reg.OnPublish(func(_ snapshot.ResourceType, snap *snapshot.Snapshot) {
		if snap.Logging.AccessLog {
			accessLogger = accesslog.NewLogger(snap.Logging.AccessLogFormat, os.Stdout)
		}
	})

	sup := listener.New(log)
	mainAddr := endpointAddr(initial.Listener.Main)
	if err := sup.Start(mainAddr, dp, limitsFor(initial)); err != nil {
		return fmt.Errorf("starting main listener: %w", err)
	}
	reg.OnPublish(func(t snapshot.ResourceType, snap *snapshot.Snapshot) {
		if t != snapshot.ResourceListener {
			return
		}
		addr := endpointAddr(snap.Listener.Main)
		if addr == sup.Addr() {
			return
		}
		if err := sup.Restart(addr, dp, limitsFor(snap), drainTimeoutFor(snap)); err != nil {
			log.Error("listener restart failed, keeping previous bind", "addr", addr, "error", err)
		}
	})

	xh := xds.New(reg, log)
	xh.Metrics = m
	controlMux := http.NewServeMux()
	controlMux.Handle("/v1/", xh)
	controlMux.Handle("/metrics", m.Handler())

	apiAddr := endpointAddr(initial.Listener.API)
	apiSrv := &http.Server{Addr: apiAddr, Handler: controlMux}
	go func() {
		log.Info("control plane listening", "addr", apiAddr)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("control plane server exited", "error", err)
		}
	}()

	log.Info("yarhs started", "data_plane_addr", mainAddr, "control_plane_addr", apiAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	drain := drainTimeoutFor(reg.Current())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	sup.Shutdown(drain)

	return nil
}

// endpointAddr renders a snapshot.Endpoint as a net.Listen-style address.
func endpointAddr(ep snapshot.Endpoint) string {
	return fmt.Sprintf("%s:%d", ep.Host, ep.Port)
}

// limitsFor derives the listener supervisor's per-connection deadlines and
// connection cap from the current PERFORMANCE bundle.
func limitsFor(snap *snapshot.Snapshot) listener.Limits {
	return listener.Limits{
		ReadTimeout:    snap.Performance.ReadTimeout,
		WriteTimeout:   snap.Performance.WriteTimeout,
		MaxConnections: snap.Performance.MaxConnections,
	}
}

// drainTimeoutFor is the deadline a listener restart or process shutdown
// drains outstanding connections for, equal to performance.keep_alive_timeout.
func drainTimeoutFor(snap *snapshot.Snapshot) time.Duration {
	if snap.Performance.KeepAliveTimeout > 0 {
		return snap.Performance.KeepAliveTimeout
	}
	return fallbackDrainTimeout
}

// parseLogLevel maps the process-level log_level setting to a slog.Level,
// defaulting to Info for anything unrecognized.
func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Package listener implements the zero-downtime listener supervisor
// (spec §4.7): the main data-plane listener is rebuilt on a port-sharing
// socket whenever a LISTENER update changes host/port, so the new bind
// can coexist with the old one while outstanding connections drain.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sys/unix"
)

// Limits bounds a listener's per-connection deadlines and concurrent
// connection count, sourced from the PERFORMANCE resource bundle.
type Limits struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
}

// bound is one live (listener, server) pair serving a single accept loop.
type bound struct {
	addr string
	ln   net.Listener
	srv  *http.Server
}

// Supervisor owns the main listener's lifecycle: initial bind, hot
// restart on a host/port change, and bounded drain of the listener being
// replaced.
type Supervisor struct {
	mu      sync.Mutex
	current *bound
	log     *slog.Logger
}

func New(log *slog.Logger) *Supervisor {
	return &Supervisor{log: log}
}

// reusePortControl sets SO_REUSEPORT on the listening socket before bind,
// so a new listener can be created on the same (host, port) the old one
// is still serving — the "port-sharing socket" the spec requires for a
// disruption-free restart (§4.7, §9).
func reusePortControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Start performs the initial bind and begins serving handler. Must be
// called once before any Restart.
func (s *Supervisor) Start(addr string, handler http.Handler, limits Limits) error {
	lc := net.ListenConfig{Control: reusePortControl}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	if limits.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, limits.MaxConnections)
	}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  limits.ReadTimeout,
		WriteTimeout: limits.WriteTimeout,
	}
	b := &bound{addr: ln.Addr().String(), ln: ln, srv: srv}

	s.mu.Lock()
	s.current = b
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("listener accept loop exited", "addr", b.addr, "error", err)
		}
	}()

	s.log.Info("listener bound", "addr", b.addr)
	return nil
}

// Restart implements the hot-swap protocol: bind the new address on a
// reuseport socket, start its accept loop, then drain the previous
// listener for up to drainTimeout before force-closing it. If the new
// bind fails, the previous listener is left untouched and an error is
// returned so the caller can NACK the update without any disruption.
func (s *Supervisor) Restart(addr string, handler http.Handler, limits Limits, drainTimeout time.Duration) error {
	lc := net.ListenConfig{Control: reusePortControl}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	if limits.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, limits.MaxConnections)
	}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  limits.ReadTimeout,
		WriteTimeout: limits.WriteTimeout,
	}
	next := &bound{addr: ln.Addr().String(), ln: ln, srv: srv}

	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("listener accept loop exited", "addr", next.addr, "error", err)
		}
	}()
	s.log.Info("listener hot-started", "addr", next.addr)

	if prev != nil {
		go s.drain(prev, drainTimeout)
	}
	return nil
}

// drain stops a previous listener from accepting new connections and
// waits up to timeout for its outstanding connections to finish, then
// force-closes anything still open.
func (s *Supervisor) drain(b *bound, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("listener draining", "addr", b.addr, "timeout", timeout)
	if err := b.srv.Shutdown(ctx); err != nil {
		s.log.Warn("listener drain deadline exceeded, forcing close", "addr", b.addr)
		_ = b.srv.Close()
	} else {
		s.log.Info("listener drained", "addr", b.addr)
	}
}

// Shutdown drains the current listener, used on process shutdown
// (SIGTERM/SIGINT).
func (s *Supervisor) Shutdown(timeout time.Duration) {
	s.mu.Lock()
	b := s.current
	s.mu.Unlock()
	if b == nil {
		return
	}
	s.drain(b, timeout)
}

// Addr returns the address the current listener is bound to.
func (s *Supervisor) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.addr
}

package listener

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func newTestSupervisor() *Supervisor {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, addr, path string) (*http.Response, error) {
	t.Helper()
	return http.Get(fmt.Sprintf("http://%s%s", addr, path))
}

func TestStartServesRequests(t *testing.T) {
	s := newTestSupervisor()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("v1"))
	})

	if err := s.Start("127.0.0.1:0", handler, Limits{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(time.Second)

	addr := s.Addr()
	waitUntilServing(t, addr)

	resp, err := get(t, addr, "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "v1" {
		t.Fatalf("body = %q, want v1", body)
	}
}

func TestStartAppliesPerformanceLimits(t *testing.T) {
	s := newTestSupervisor()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	limits := Limits{ReadTimeout: 2 * time.Second, WriteTimeout: 3 * time.Second, MaxConnections: 1}
	if err := s.Start("127.0.0.1:0", handler, limits); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(time.Second)

	s.mu.Lock()
	srv := s.current.srv
	s.mu.Unlock()

	if srv.ReadTimeout != limits.ReadTimeout {
		t.Fatalf("ReadTimeout = %v, want %v", srv.ReadTimeout, limits.ReadTimeout)
	}
	if srv.WriteTimeout != limits.WriteTimeout {
		t.Fatalf("WriteTimeout = %v, want %v", srv.WriteTimeout, limits.WriteTimeout)
	}
}

func TestRestartSwapsHandlerOnSamePort(t *testing.T) {
	s := newTestSupervisor()
	v1 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("v1"))
	})

	if err := s.Start("127.0.0.1:0", v1, Limits{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown(time.Second)

	addr := s.Addr()
	waitUntilServing(t, addr)

	v2 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("v2"))
	})
	if err := s.Restart(addr, v2, Limits{}, time.Second); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	waitForBody(t, addr, "v2")
}

// waitUntilServing polls addr until it accepts connections, bounding the
// race between Start's background accept-loop goroutine and the test's
// first request.
func waitUntilServing(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if resp, err := get(t, addr, "/"); err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("listener at %s never started serving", addr)
}

func waitForBody(t *testing.T, addr, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := get(t, addr, "/")
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if string(body) == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("listener at %s never served body %q", addr, want)
}

package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "buildpulse/pkg/logx"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Options{BaseURL: srv.URL, RequestTimeout: 2 * time.Second, Log: logx.Nop()})
	return c, srv
}

func TestHealth(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestStartBuild(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/start" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("name") != "web-auth" || q.Get("build_id") != "abcd1234" {
			t.Errorf("unexpected query: %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"next_id": 42}`))
	}))

	res, err := c.StartBuild(context.Background(), "web-auth", "abcd1234")
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	if res.NextID != 42 {
		t.Fatalf("next_id = %d, want 42", res.NextID)
	}
}

func TestStartBuildNon200IsError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	if _, err := c.StartBuild(context.Background(), "p", "b"); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestFinishBuildWants201(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusCreated)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/finish" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(int(status.Load()))
	}))

	if err := c.FinishBuild(context.Background(), "p", "b"); err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	// A plain 200 is not an acknowledgment for finish.
	status.Store(http.StatusOK)
	if err := c.FinishBuild(context.Background(), "p", "b"); err == nil {
		t.Fatal("expected error on 200")
	}
}

func TestSetRateConcurrentWithRequests(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Swap the limiter while requests are in flight; the race detector
	// flags unsynchronized access to it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			c.SetRate((i % 3) * 500)
		}
	}()
	for i := 0; i < 50; i++ {
		if err := c.Health(context.Background()); err != nil {
			t.Fatalf("Health: %v", err)
		}
	}
	<-done
}

func TestWaitReadyExhaustsBudget(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	err := c.WaitReady(context.Background(), 3, time.Millisecond)
	if err == nil {
		t.Fatal("expected readiness failure")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 probes, got %d", got)
	}
}

func TestWaitReadySucceedsMidBudget(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.WaitReady(context.Background(), 10, time.Millisecond); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 probes, got %d", got)
	}
}

func TestWaitReadyHonorsContext(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.WaitReady(ctx, 100, time.Second); err == nil {
		t.Fatal("expected context error")
	}
}

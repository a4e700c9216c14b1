package generator

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"buildpulse/internal/eventbus"
	"buildpulse/internal/registry"
	"buildpulse/internal/remote"
	logx "buildpulse/pkg/logx"
)

type fakeRemote struct {
	mu     sync.Mutex
	nextID int
}

func (f *fakeRemote) StartBuild(ctx context.Context, project, buildID string) (remote.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return remote.StartResult{NextID: f.nextID}, nil
}

func (f *fakeRemote) FinishBuild(ctx context.Context, project, buildID string) error {
	return nil
}

// quietTunables keeps the loop idle so tests can drive state by hand.
func quietTunables() Tunables {
	return Tunables{
		IntervalMin:       time.Millisecond,
		IntervalMax:       2 * time.Millisecond,
		BuildDurationMin:  time.Hour,
		BuildDurationMax:  time.Hour,
		SuccessRate:       1,
		StartChance:       0,
		ForceFinishChance: 0,
	}
}

func newTestService(t *testing.T, projects int) (*Service, *registry.Registry, eventbus.Bus) {
	t.Helper()
	reg, err := registry.New(projects, &fakeRemote{}, logx.Nop(), 11)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	bus := eventbus.New()
	s := New(Options{
		Registry: reg,
		Bus:      bus,
		Log:      logx.Nop(),
		Tunables: quietTunables(),
		Seed:     11,
	})
	return s, reg, bus
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestDeferredFinishFires(t *testing.T) {
	s, reg, _ := newTestService(t, 2)
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	p := reg.All()[0]
	id, err := p.StartBuild(ctx)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	s.scheduleFinish(p, id, true, 5*time.Millisecond)

	waitFor(t, func() bool {
		_, completed, _ := p.Totals()
		return completed == 1
	})
	if p.ActiveCount() != 0 {
		t.Fatalf("build still active after deferred finish")
	}
	waitFor(t, func() bool { return s.PendingTimers() == 0 })
}

func TestStopCancelsPendingTimersAndSweeps(t *testing.T) {
	s, reg, bus := newTestService(t, 2)
	ctx := context.Background()

	events, unsub := bus.Subscribe(32)
	defer unsub()

	s.Start(ctx)

	p := reg.All()[0]
	id, err := p.StartBuild(ctx)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	s.scheduleFinish(p, id, false, time.Hour)

	if s.PendingTimers() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", s.PendingTimers())
	}

	s.Stop(ctx)

	if s.PendingTimers() != 0 {
		t.Fatalf("pending timers survived Stop: %d", s.PendingTimers())
	}
	active, completed, failed := p.Totals()
	if active != 0 || completed != 1 || failed != 0 {
		t.Fatalf("sweep totals = (%d,%d,%d), want (0,1,0)", active, completed, failed)
	}

	// The sweep's finish must be reported as forced + successful.
	select {
	case ev := <-events:
		fin, ok := ev.Data.(eventbus.BuildFinished)
		if !ok || ev.Type != eventbus.TypeBuildFinished {
			t.Fatalf("unexpected event %+v", ev)
		}
		if !fin.Forced || !fin.Success {
			t.Fatalf("sweep event = %+v, want forced success", fin)
		}
		if fin.ServerID != 1 {
			t.Fatalf("sweep event server id = %d, want 1", fin.ServerID)
		}
	default:
		t.Fatal("no finished event published by sweep")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s, _, _ := newTestService(t, 1)
	ctx := context.Background()
	s.Start(ctx)
	s.Stop(ctx)
	s.Stop(ctx) // must not panic or block
}

func TestLoopStartsBuilds(t *testing.T) {
	s, reg, _ := newTestService(t, 1)
	tun := quietTunables()
	tun.StartChance = 1
	tun.BuildDurationMin = time.Hour
	tun.BuildDurationMax = time.Hour
	s.Apply(tun)

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	waitFor(t, func() bool { return reg.Totals().Active >= 1 })
	if s.PendingTimers() == 0 {
		t.Fatal("started build has no deferred finish scheduled")
	}
}

func TestRandDurationBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	min, max := 10*time.Millisecond, 30*time.Millisecond
	for i := 0; i < 1000; i++ {
		d := randDuration(rng, min, max)
		if d < min || d > max {
			t.Fatalf("duration %v outside [%v, %v]", d, min, max)
		}
	}
	if d := randDuration(rng, max, min); d != max {
		t.Fatalf("degenerate bounds should return min argument, got %v", d)
	}
}

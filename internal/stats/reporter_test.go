package stats

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"buildpulse/internal/registry"
	"buildpulse/internal/remote"
	logx "buildpulse/pkg/logx"
)

type okRemote struct {
	mu sync.Mutex
	n  int
}

func (f *okRemote) StartBuild(ctx context.Context, project, buildID string) (remote.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return remote.StartResult{NextID: f.n}, nil
}

func (f *okRemote) FinishBuild(ctx context.Context, project, buildID string) error { return nil }

func TestReportPrintsAggregates(t *testing.T) {
	reg, err := registry.New(2, &okRemote{}, logx.Nop(), 9)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	ctx := context.Background()
	p := reg.All()[0]
	id, err := p.StartBuild(ctx)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	if _, err := p.FinishBuild(ctx, id, true); err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	var buf bytes.Buffer
	r := New(Options{Registry: reg, Log: logx.Nop(), Out: &buf})
	r.Report()

	out := buf.String()
	for _, want := range []string{
		"demo statistics",
		"completed builds: 1",
		"failed builds:    0",
		"success rate:     100.0%",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestFinalMarksSummary(t *testing.T) {
	reg, err := registry.New(1, &okRemote{}, logx.Nop(), 2)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	var buf bytes.Buffer
	r := New(Options{Registry: reg, Log: logx.Nop(), Out: &buf})
	r.Final()
	if !strings.Contains(buf.String(), "final demo statistics") {
		t.Fatalf("missing final header:\n%s", buf.String())
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	reg, err := registry.New(1, &okRemote{}, logx.Nop(), 2)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	r := New(Options{Registry: reg, Log: logx.Nop(), Schedule: "not-a-spec"})
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	reg, err := registry.New(1, &okRemote{}, logx.Nop(), 2)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	var buf bytes.Buffer
	r := New(Options{Registry: reg, Log: logx.Nop(), Schedule: "@every 1h", Out: &buf})
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	r.Stop(ctx)
	r.Stop(ctx)
}

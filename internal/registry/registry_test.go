package registry

import (
	"context"
	"testing"

	logx "buildpulse/pkg/logx"
)

func TestRegistryNamesUniqueAndValid(t *testing.T) {
	r, err := New(40, &fakeRemote{}, logx.Nop(), 7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Len() == 0 {
		t.Fatal("no projects created")
	}
	seen := map[string]bool{}
	for _, name := range r.Names() {
		if seen[name] {
			t.Fatalf("duplicate project name %q", name)
		}
		seen[name] = true
		if len(name) > maxNameLen {
			t.Fatalf("name %q too long", name)
		}
	}
}

func TestRegistryRejectsZeroCount(t *testing.T) {
	if _, err := New(0, &fakeRemote{}, logx.Nop(), 1); err == nil {
		t.Fatal("expected error for count 0")
	}
}

func TestRegistryTotals(t *testing.T) {
	r, err := New(3, &fakeRemote{}, logx.Nop(), 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	p := r.All()[0]
	id1, err := p.StartBuild(ctx)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	id2, err := p.StartBuild(ctx)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	if _, err := p.FinishBuild(ctx, id1, true); err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}
	if _, err := p.FinishBuild(ctx, id2, false); err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	agg := r.Totals()
	if agg.Projects != r.Len() || agg.Active != 0 || agg.Completed != 1 || agg.Failed != 1 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	if got := agg.SuccessRate(); got != 0.5 {
		t.Fatalf("success rate = %v, want 0.5", got)
	}
}

func TestAggregateSuccessRateEmpty(t *testing.T) {
	var agg Aggregate
	if got := agg.SuccessRate(); got != 1 {
		t.Fatalf("empty success rate = %v, want 1", got)
	}
}

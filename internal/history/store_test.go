package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"buildpulse/internal/eventbus"
	logx "buildpulse/pkg/logx"
)

func TestOpenNoneIsNoop(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.AppendBuild(context.Background(), Record{}); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	recs := []Record{
		{FinishedAt: now.Add(-2 * time.Minute), Project: "web-auth", BuildID: "aaaa1111", ServerID: 1, Success: true, Took: 90 * time.Second},
		{FinishedAt: now.Add(-time.Minute), Project: "api-core", BuildID: "bbbb2222", ServerID: 2, Success: false, Forced: true, Took: 30 * time.Second},
	}
	for _, r := range recs {
		if err := st.AppendBuild(ctx, r); err != nil {
			t.Fatalf("AppendBuild: %v", err)
		}
	}

	got, err := st.RecentBuilds(ctx, 10)
	if err != nil {
		t.Fatalf("RecentBuilds: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	// Newest first.
	if got[0].Project != "api-core" || !got[0].Forced || got[0].Success {
		t.Fatalf("unexpected newest row: %+v", got[0])
	}
	if got[1].Project != "web-auth" || got[1].ServerID != 1 || got[1].Took != 90*time.Second {
		t.Fatalf("unexpected oldest row: %+v", got[1])
	}
}

func TestConsumerAppendsFinishedBuilds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	c := NewConsumer(st, bus, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	bus.Publish(eventbus.Event{
		Type: eventbus.TypeBuildFinished,
		Data: eventbus.BuildFinished{Project: "cli-deploy", BuildID: "cccc3333", ServerID: 7, Success: true, Duration: time.Second},
	})
	// Started events are not persisted.
	bus.Publish(eventbus.Event{
		Type: eventbus.TypeBuildStarted,
		Data: eventbus.BuildStarted{Project: "cli-deploy", BuildID: "dddd4444"},
	})

	deadline := time.Now().Add(2 * time.Second)
	var rows []Record
	for time.Now().Before(deadline) {
		rows, err = st.RecentBuilds(ctx, 10)
		if err != nil {
			t.Fatalf("RecentBuilds: %v", err)
		}
		if len(rows) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 persisted build, got %d", len(rows))
	}
	if rows[0].BuildID != "cccc3333" || !rows[0].Success {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
	if rows[0].ServerID != 7 {
		t.Fatalf("server id not persisted: %+v", rows[0])
	}

	c.Stop()
}

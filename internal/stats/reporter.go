// Package stats prints periodic aggregate counts for the running demo.
package stats

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/robfig/cron/v3"

	"buildpulse/internal/registry"
	logx "buildpulse/pkg/logx"
)

// Reporter prints a stats block on a cron schedule ("@every 1m" by default)
// until stopped, plus a final summary at shutdown.
type Reporter struct {
	reg *registry.Registry
	log logx.Logger
	out io.Writer

	mu       sync.Mutex
	schedule string
	c        *cron.Cron
}

type Options struct {
	Registry *registry.Registry
	Log      logx.Logger
	// Schedule is a robfig/cron spec; empty means "@every 1m".
	Schedule string
	// Out receives the human-oriented block; nil means stdout.
	Out io.Writer
}

func New(opts Options) *Reporter {
	schedule := opts.Schedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	out := opts.Out
	if out == nil {
		out = logx.Stdout()
	}
	return &Reporter{
		reg:      opts.Registry,
		log:      opts.Log,
		out:      out,
		schedule: schedule,
	}
}

// Start begins periodic reporting. No-op if already running.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, r.Report); err != nil {
		return fmt.Errorf("stats: bad schedule %q: %w", r.schedule, err)
	}
	c.Start()
	r.c = c
	r.log.Info("stats reporter started", logx.String("schedule", r.schedule))
	return nil
}

// Apply swaps the schedule at runtime by restarting the cron instance.
func (r *Reporter) Apply(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = "@every 1m"
	}
	r.mu.Lock()
	running := r.c != nil
	same := schedule == r.schedule
	r.mu.Unlock()
	if same {
		return nil
	}
	if running {
		r.Stop(ctx)
	}
	r.mu.Lock()
	r.schedule = schedule
	r.mu.Unlock()
	if running {
		return r.Start(ctx)
	}
	return nil
}

// Stop halts periodic reporting, waiting for an in-flight report to finish
// unless ctx expires first. Idempotent.
func (r *Reporter) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Report prints one aggregate block immediately.
func (r *Reporter) Report() {
	r.print(r.reg.Totals(), false)
}

// Final prints the end-of-run summary.
func (r *Reporter) Final() {
	r.print(r.reg.Totals(), true)
}

func (r *Reporter) print(agg registry.Aggregate, final bool) {
	header := "demo statistics"
	if final {
		header = "final demo statistics"
	}
	fmt.Fprintf(r.out, "\n%s:\n", header)
	fmt.Fprintf(r.out, "  projects:         %d\n", agg.Projects)
	fmt.Fprintf(r.out, "  active builds:    %d\n", agg.Active)
	fmt.Fprintf(r.out, "  completed builds: %d\n", agg.Completed)
	fmt.Fprintf(r.out, "  failed builds:    %d\n", agg.Failed)
	fmt.Fprintf(r.out, "  success rate:     %.1f%%\n\n", agg.SuccessRate()*100)

	r.log.Debug("stats reported",
		logx.Int("projects", agg.Projects),
		logx.Int("active", agg.Active),
		logx.Uint64("completed", agg.Completed),
		logx.Uint64("failed", agg.Failed),
		logx.Float64("success_rate", agg.SuccessRate()))
}

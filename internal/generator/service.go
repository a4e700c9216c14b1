package generator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"buildpulse/internal/eventbus"
	"buildpulse/internal/registry"
	logx "buildpulse/pkg/logx"
)

// Tunables are the knobs the loop re-reads every iteration, so a config
// reload takes effect without restarting the service.
type Tunables struct {
	IntervalMin time.Duration
	IntervalMax time.Duration

	BuildDurationMin time.Duration
	BuildDurationMax time.Duration

	// SuccessRate is the weighted coin for build outcomes, in [0,1].
	SuccessRate float64

	// StartChance / ForceFinishChance shape the per-iteration action draw.
	StartChance       float64
	ForceFinishChance float64
}

type Options struct {
	Registry *registry.Registry
	Bus      eventbus.Bus
	Log      logx.Logger
	Tunables Tunables

	// Seed fixes the loop's RNG for tests. Zero means time-seeded.
	Seed int64
}

// Service runs the activity loop. Start/Stop follow the usual daemon shape:
// Start spawns the loop, Stop cancels timers, waits the loop out, and sweeps.
type Service struct {
	reg  *registry.Registry
	bus  eventbus.Bus
	log  logx.Logger
	seed int64

	mu        sync.Mutex
	tun       Tunables
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	// tmu guards the pending deferred-finish timers, keyed project + "#" + build id.
	tmu    sync.Mutex
	timers map[string]*time.Timer
}

func New(opts Options) *Service {
	return &Service{
		reg:    opts.Registry,
		bus:    opts.Bus,
		log:    opts.Log,
		seed:   opts.Seed,
		tun:    opts.Tunables,
		timers: map[string]*time.Timer{},
	}
}

// Apply swaps the loop tunables. Safe to call while running.
func (s *Service) Apply(tun Tunables) {
	s.mu.Lock()
	s.tun = tun
	s.mu.Unlock()
}

func (s *Service) tunables() Tunables {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tun
}

// Start launches the activity loop. Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	seed := s.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	runCtx := s.runCtx
	stopCh := s.stopCh
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(runCtx, stopCh, rng)
	}()
	s.log.Info("activity loop started", logx.Int("projects", s.reg.Len()))
}

// Stop halts the loop, cancels every pending deferred finish, then
// force-finishes all still-active builds so the run ends with a clean slate.
// Stop is idempotent.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	s.stopCh = nil
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	// Deterministically suppress pending finishes: anything a timer would have
	// done is owned by the sweep from here on.
	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("activity loop did not stop in time")
		return
	}

	s.sweep(ctx)
	s.log.Info("activity loop stopped")
}

// PendingTimers reports how many deferred finishes are currently scheduled.
func (s *Service) PendingTimers() int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return len(s.timers)
}

// sweep force-finishes everything still active. Sweep outcomes count as
// completed: the demo ends with its books balanced.
func (s *Service) sweep(ctx context.Context) {
	swept := 0
	for _, p := range s.reg.All() {
		for _, id := range p.ActiveIDs() {
			res, err := p.FinishBuild(ctx, id, true)
			if err != nil {
				s.log.Warn("sweep finish failed",
					logx.String("project", p.Name()),
					logx.String("build_id", id),
					logx.Err(err))
				continue
			}
			swept++
			s.publishFinished(p.Name(), id, res, true, true)
		}
	}
	if swept > 0 {
		s.log.Info("active builds swept", logx.Int("count", swept))
	}
}

func (s *Service) publishFinished(project, buildID string, res registry.BuildResult, success, forced bool) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeBuildFinished,
		Data: eventbus.BuildFinished{
			Project:  project,
			BuildID:  buildID,
			ServerID: res.ServerID,
			Success:  success,
			Forced:   forced,
			Duration: res.Took,
		},
	})
}

func (s *Service) publishStarted(project, buildID string, serverID int) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeBuildStarted,
		Data: eventbus.BuildStarted{
			Project:  project,
			BuildID:  buildID,
			ServerID: serverID,
		},
	})
}

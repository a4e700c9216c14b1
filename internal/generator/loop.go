package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"buildpulse/internal/registry"
	logx "buildpulse/pkg/logx"
)

// errPause is how long the loop sits out after an iteration blew up.
const errPause = 5 * time.Second

func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}, rng *rand.Rand) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		tun := s.tunables()
		pause := randDuration(rng, tun.IntervalMin, tun.IntervalMax)
		if err := s.iterate(ctx, rng, tun); err != nil {
			s.log.Error("iteration failed; pausing", logx.Err(err))
			pause = errPause
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-time.After(pause):
		}
	}
}

// iterate performs one random action. Remote call failures are handled (and
// logged) inside the project and do not count as iteration errors; only a
// genuine programming error (panic) does.
func (s *Service) iterate(ctx context.Context, rng *rand.Rand, tun Tunables) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	p := s.reg.Pick(rng)

	switch {
	case rng.Float64() < tun.StartChance && p.ActiveCount() == 0:
		s.startOne(ctx, rng, tun, p)
	case p.ActiveCount() > 0 && rng.Float64() < tun.ForceFinishChance:
		s.forceFinishOne(ctx, rng, tun, p)
	}
	return nil
}

// startOne starts a build and schedules its deferred finish. The outcome coin
// is flipped now, at schedule time, so the timer callback carries no RNG.
func (s *Service) startOne(ctx context.Context, rng *rand.Rand, tun Tunables, p *registry.Project) {
	buildID, err := p.StartBuild(ctx)
	if err != nil {
		// Already logged by the project; this single operation is abandoned.
		return
	}

	serverID := 0
	if info, ok := p.ActiveBuild(buildID); ok {
		serverID = info.ServerID
	}
	s.publishStarted(p.Name(), buildID, serverID)

	runFor := randDuration(rng, tun.BuildDurationMin, tun.BuildDurationMax)
	success := rng.Float64() < tun.SuccessRate
	s.scheduleFinish(p, buildID, success, runFor)
}

// forceFinishOne immediately completes a random active build, simulating
// manual intervention, and cancels its scheduled timer on success.
func (s *Service) forceFinishOne(ctx context.Context, rng *rand.Rand, tun Tunables, p *registry.Project) {
	ids := p.ActiveIDs()
	if len(ids) == 0 {
		return
	}
	buildID := ids[rng.Intn(len(ids))]
	success := rng.Float64() < tun.SuccessRate

	res, err := p.FinishBuild(ctx, buildID, success)
	if err != nil {
		// Remote failure leaves the scheduled timer armed to retry later; an
		// unknown id means a racing timer already finished this build.
		return
	}

	s.cancelTimer(timerKey(p.Name(), buildID))
	s.publishFinished(p.Name(), buildID, res, success, true)
}

func (s *Service) scheduleFinish(p *registry.Project, buildID string, success bool, after time.Duration) {
	key := timerKey(p.Name(), buildID)
	s.tmu.Lock()
	if old, ok := s.timers[key]; ok {
		_ = old.Stop()
	}
	s.timers[key] = time.AfterFunc(after, func() {
		s.onTimer(key, p, buildID, success)
	})
	s.tmu.Unlock()

	s.log.Debug("finish scheduled",
		logx.String("project", p.Name()),
		logx.String("build_id", buildID),
		logx.Duration("after", after),
		logx.Bool("success", success))
}

func (s *Service) onTimer(key string, p *registry.Project, buildID string, success bool) {
	s.tmu.Lock()
	delete(s.timers, key)
	s.tmu.Unlock()

	// A stopped service owns every remaining build via the sweep.
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	res, err := p.FinishBuild(ctx, buildID, success)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownBuild) {
			// Already force-finished; nothing to do.
			return
		}
		// Remote failure: abandoned, the stats will show it as still active
		// until the shutdown sweep picks it up.
		return
	}
	s.publishFinished(p.Name(), buildID, res, success, false)
}

func (s *Service) cancelTimer(key string) {
	s.tmu.Lock()
	if t, ok := s.timers[key]; ok {
		_ = t.Stop()
		delete(s.timers, key)
	}
	s.tmu.Unlock()
}

func timerKey(project, buildID string) string { return project + "#" + buildID }

// randDuration draws uniformly from [min, max]. Degenerate bounds collapse to min.
func randDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}

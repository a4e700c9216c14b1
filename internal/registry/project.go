package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"buildpulse/internal/remote"
	logx "buildpulse/pkg/logx"
)

// Remote is the slice of the build-counter client the registry needs.
// *remote.Client satisfies it.
type Remote interface {
	StartBuild(ctx context.Context, project, buildID string) (remote.StartResult, error)
	FinishBuild(ctx context.Context, project, buildID string) error
}

// ErrUnknownBuild reports a finish attempt for a build id that is not in the
// project's active set. The project state is guaranteed untouched.
var ErrUnknownBuild = errors.New("registry: unknown build id")

// BuildInfo is what we remember about an acknowledged, still-running build.
type BuildInfo struct {
	ServerID  int
	StartedAt time.Time
}

// BuildResult summarizes an acknowledged finish.
type BuildResult struct {
	ServerID int
	Took     time.Duration
}

// Project tracks one fictitious project's in-flight and finished builds.
//
// Invariant: a build id is in active iff the remote service acknowledged its
// start and has not yet acknowledged a finish. Counters only move when an id
// leaves the active set, and they never decrease.
type Project struct {
	name string
	rc   Remote
	log  logx.Logger

	mu        sync.Mutex
	active    map[string]BuildInfo
	completed uint64
	failed    uint64
}

func newProject(name string, rc Remote, log logx.Logger) *Project {
	return &Project{
		name:   name,
		rc:     rc,
		log:    log.With(logx.String("project", name)),
		active: map[string]BuildInfo{},
	}
}

func (p *Project) Name() string { return p.name }

// StartBuild generates a short build token, reports the start to the remote
// service, and records the build as active on acknowledgment. On any failure
// it logs, leaves state unchanged, and returns an empty id with the error.
func (p *Project) StartBuild(ctx context.Context) (string, error) {
	buildID := newBuildID()

	res, err := p.rc.StartBuild(ctx, p.name, buildID)
	if err != nil {
		p.log.Warn("build start rejected", logx.String("build_id", buildID), logx.Err(err))
		return "", err
	}

	p.mu.Lock()
	p.active[buildID] = BuildInfo{ServerID: res.NextID, StartedAt: time.Now()}
	p.mu.Unlock()

	p.log.Info("build started",
		logx.String("build_id", buildID),
		logx.Int("server_id", res.NextID))
	return buildID, nil
}

// FinishBuild reports completion of an active build and, on acknowledgment,
// removes it from the active set and bumps the matching counter. Finishing an
// id that is not active is a no-op returning ErrUnknownBuild. On remote
// failure state is left unchanged so the caller may re-invoke.
func (p *Project) FinishBuild(ctx context.Context, buildID string, success bool) (BuildResult, error) {
	p.mu.Lock()
	_, ok := p.active[buildID]
	p.mu.Unlock()
	if !ok {
		return BuildResult{}, ErrUnknownBuild
	}

	if err := p.rc.FinishBuild(ctx, p.name, buildID); err != nil {
		p.log.Warn("build finish rejected", logx.String("build_id", buildID), logx.Err(err))
		return BuildResult{}, err
	}

	// Removal and counting happen atomically so a racing finish for the same id
	// cannot double-count; the loser sees the id gone and reports unknown.
	p.mu.Lock()
	info, ok := p.active[buildID]
	if !ok {
		p.mu.Unlock()
		return BuildResult{}, ErrUnknownBuild
	}
	delete(p.active, buildID)
	if success {
		p.completed++
	} else {
		p.failed++
	}
	p.mu.Unlock()

	res := BuildResult{ServerID: info.ServerID, Took: time.Since(info.StartedAt)}
	p.log.Info("build finished",
		logx.String("build_id", buildID),
		logx.Int("server_id", res.ServerID),
		logx.Bool("success", success),
		logx.Duration("took", res.Took))
	return res, nil
}

// ActiveCount reports how many builds are currently in flight.
func (p *Project) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// ActiveIDs returns a snapshot of the in-flight build ids.
func (p *Project) ActiveIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	return ids
}

// ActiveBuild looks up a single in-flight build.
func (p *Project) ActiveBuild(buildID string) (BuildInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.active[buildID]
	return info, ok
}

// Totals returns (active, completed, failed).
func (p *Project) Totals() (int, uint64, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active), p.completed, p.failed
}

func newBuildID() string {
	// Short token in the style of uuid4()[:8]; collisions within one project
	// are vanishingly unlikely and harmless across projects.
	return uuid.NewString()[:8]
}

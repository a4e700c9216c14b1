package registry

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	logx "buildpulse/pkg/logx"
)

// Registry holds the fixed project population for one run.
//
// It is immutable after New(): concurrent readers need no locking here, and
// all mutation happens inside the individual projects.
type Registry struct {
	projects []*Project
}

// Aggregate is a point-in-time sum over every project.
type Aggregate struct {
	Projects  int
	Active    int
	Completed uint64
	Failed    uint64
}

// SuccessRate is completed/(completed+failed), or 1 when nothing finished yet.
func (a Aggregate) SuccessRate() float64 {
	done := a.Completed + a.Failed
	if done == 0 {
		return 1
	}
	return float64(a.Completed) / float64(done)
}

// New creates count uniquely named projects. Name generation is attempt-bounded:
// with a small namespace and a large count the registry settles for fewer
// projects rather than spinning forever.
func New(count int, rc Remote, log logx.Logger, seed int64) (*Registry, error) {
	if count < 1 {
		return nil, fmt.Errorf("registry: project count must be >= 1, got %d", count)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	r := &Registry{}
	seen := make(map[string]bool, count)
	maxAttempts := count * 20
	for attempt := 0; len(r.projects) < count && attempt < maxAttempts; attempt++ {
		name := generateName(rng)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		r.projects = append(r.projects, newProject(name, rc, log))
	}
	if len(r.projects) == 0 {
		return nil, fmt.Errorf("registry: could not generate any project names")
	}
	if len(r.projects) < count {
		log.Warn("name space exhausted; running with fewer projects",
			logx.Int("requested", count),
			logx.Int("created", len(r.projects)))
	}

	names := r.Names()
	log.Info("projects created", logx.Int("count", len(names)))
	for _, n := range names {
		log.Debug("project", logx.String("name", n))
	}
	return r, nil
}

// Len reports the number of projects.
func (r *Registry) Len() int { return len(r.projects) }

// Pick returns a uniformly random project.
func (r *Registry) Pick(rng *rand.Rand) *Project {
	return r.projects[rng.Intn(len(r.projects))]
}

// All returns the project slice; callers must not mutate it.
func (r *Registry) All() []*Project { return r.projects }

// Names returns the project names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.projects))
	for _, p := range r.projects {
		names = append(names, p.name)
	}
	sort.Strings(names)
	return names
}

// Totals sums build state across all projects.
func (r *Registry) Totals() Aggregate {
	agg := Aggregate{Projects: len(r.projects)}
	for _, p := range r.projects {
		active, completed, failed := p.Totals()
		agg.Active += active
		agg.Completed += completed
		agg.Failed += failed
	}
	return agg
}

package config

import (
	"fmt"
	"strings"
	"time"
)

// Resolved is the runtime view of a Config: duration strings parsed, defaults
// filled in, ranges validated. Services consume this, never the raw Config.
type Resolved struct {
	BaseURL        string
	RequestTimeout time.Duration
	ReadyRetries   int
	ReadyBackoff   time.Duration
	RatePerSec     int

	Projects          int
	IntervalMin       time.Duration
	IntervalMax       time.Duration
	BuildDurationMin  time.Duration
	BuildDurationMax  time.Duration
	SuccessRate       float64
	StartChance       float64
	ForceFinishChance float64

	StatsEnabled  bool
	StatsSchedule string

	HistoryDriver      string
	HistoryPath        string
	HistoryBusyTimeout time.Duration
	HistoryMaxRows     int
}

// Resolve parses and validates cfg. It never mutates cfg.
func (c *Config) Resolve() (*Resolved, error) {
	r := &Resolved{}

	r.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	if r.BaseURL == "" {
		r.BaseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(r.BaseURL, "http://") && !strings.HasPrefix(r.BaseURL, "https://") {
		return nil, fmt.Errorf("remote.base_url: %q is not an http(s) URL", c.Remote.BaseURL)
	}

	var err error
	if r.RequestTimeout, err = ParseDurationOrDefault("remote.request_timeout", c.Remote.RequestTimeout, DefaultRequestTimeout); err != nil {
		return nil, err
	}
	if r.ReadyBackoff, err = ParseDurationOrDefault("remote.ready_backoff", c.Remote.ReadyBackoff, DefaultReadyBackoff); err != nil {
		return nil, err
	}
	r.ReadyRetries = c.Remote.ReadyRetries
	if r.ReadyRetries <= 0 {
		r.ReadyRetries = DefaultReadyRetries
	}
	if c.Remote.RatePerSec < 0 {
		return nil, fmt.Errorf("remote.rate_per_sec: must be >= 0")
	}
	r.RatePerSec = c.Remote.RatePerSec

	r.Projects = c.Demo.Projects
	if r.Projects == 0 {
		r.Projects = DefaultProjects
	}
	if r.Projects < 1 {
		return nil, fmt.Errorf("demo.projects: must be >= 1")
	}

	if r.IntervalMin, err = ParseDurationOrDefault("demo.interval_min", c.Demo.IntervalMin, DefaultIntervalMin); err != nil {
		return nil, err
	}
	if r.IntervalMax, err = ParseDurationOrDefault("demo.interval_max", c.Demo.IntervalMax, DefaultIntervalMax); err != nil {
		return nil, err
	}
	if r.BuildDurationMin, err = ParseDurationOrDefault("demo.build_duration_min", c.Demo.BuildDurationMin, DefaultDurationMin); err != nil {
		return nil, err
	}
	if r.BuildDurationMax, err = ParseDurationOrDefault("demo.build_duration_max", c.Demo.BuildDurationMax, DefaultDurationMax); err != nil {
		return nil, err
	}
	if r.IntervalMin > r.IntervalMax {
		return nil, fmt.Errorf("demo.interval_min: %s exceeds interval_max %s", r.IntervalMin, r.IntervalMax)
	}
	if r.BuildDurationMin > r.BuildDurationMax {
		return nil, fmt.Errorf("demo.build_duration_min: %s exceeds build_duration_max %s", r.BuildDurationMin, r.BuildDurationMax)
	}

	r.SuccessRate = DefaultSuccessRate
	if c.Demo.SuccessRate != nil {
		r.SuccessRate = *c.Demo.SuccessRate
	}
	if r.SuccessRate < 0 || r.SuccessRate > 1 {
		return nil, fmt.Errorf("demo.success_rate: %v outside [0,1]", r.SuccessRate)
	}

	r.StartChance = DefaultStartChance
	if c.Demo.StartChance != nil {
		r.StartChance = *c.Demo.StartChance
	}
	r.ForceFinishChance = DefaultForceChance
	if c.Demo.ForceFinishChance != nil {
		r.ForceFinishChance = *c.Demo.ForceFinishChance
	}
	if r.StartChance < 0 || r.StartChance > 1 {
		return nil, fmt.Errorf("demo.start_chance: %v outside [0,1]", r.StartChance)
	}
	if r.ForceFinishChance < 0 || r.ForceFinishChance > 1 {
		return nil, fmt.Errorf("demo.force_finish_chance: %v outside [0,1]", r.ForceFinishChance)
	}

	r.StatsEnabled = true
	if c.Stats.Enabled != nil {
		r.StatsEnabled = *c.Stats.Enabled
	}
	r.StatsSchedule = strings.TrimSpace(c.Stats.Schedule)
	if r.StatsSchedule == "" {
		r.StatsSchedule = DefaultStatsSchedule
	}

	driver := strings.ToLower(strings.TrimSpace(c.History.Driver))
	switch driver {
	case "", "none":
		r.HistoryDriver = "none"
	case "sqlite":
		r.HistoryDriver = "sqlite"
		r.HistoryPath = strings.TrimSpace(c.History.Path)
		if r.HistoryPath == "" {
			return nil, fmt.Errorf("history.path: required when history.driver is sqlite")
		}
	default:
		return nil, fmt.Errorf("history.driver: unknown driver %q", c.History.Driver)
	}
	if r.HistoryBusyTimeout, err = ParseDurationField("history.busy_timeout", c.History.BusyTimeout); err != nil {
		return nil, err
	}
	r.HistoryMaxRows = c.History.MaxRows
	if r.HistoryMaxRows < 0 {
		return nil, fmt.Errorf("history.max_rows: must be >= 0")
	}

	return r, nil
}

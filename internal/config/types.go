package config

import "time"

type Config struct {
	Remote  RemoteConfig  `json:"remote"`
	Demo    DemoConfig    `json:"demo"`
	Stats   StatsConfig   `json:"stats"`
	History HistoryConfig `json:"history,omitempty"`
	Logging LoggingConfig `json:"logging"`
}

// RemoteConfig points at the build-counter service the generator drives.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type RemoteConfig struct {
	BaseURL string `json:"base_url"`

	// RequestTimeout bounds every single HTTP call. "0s" falls back to 10s.
	RequestTimeout string `json:"request_timeout,omitempty"`

	// Readiness probe: retry budget and fixed backoff between attempts.
	ReadyRetries int    `json:"ready_retries,omitempty"`
	ReadyBackoff string `json:"ready_backoff,omitempty"`

	// RatePerSec caps outbound requests to the shared service. 0 disables the cap.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// DemoConfig tunes the synthetic traffic shape.
//
// IntervalMin/Max bound the pause between loop iterations; BuildDurationMin/Max
// bound how long a started build "runs" before its deferred finish fires.
type DemoConfig struct {
	Projects int `json:"projects"`

	IntervalMin      string `json:"interval_min,omitempty"`
	IntervalMax      string `json:"interval_max,omitempty"`
	BuildDurationMin string `json:"build_duration_min,omitempty"`
	BuildDurationMax string `json:"build_duration_max,omitempty"`

	// SuccessRate is the probability a finished build is reported as successful.
	SuccessRate *float64 `json:"success_rate,omitempty"`

	// StartChance / ForceFinishChance shape the per-iteration action draw.
	// Unset means 0.7 / 0.1; an explicit 0 disables that action.
	StartChance       *float64 `json:"start_chance,omitempty"`
	ForceFinishChance *float64 `json:"force_finish_chance,omitempty"`
}

// StatsConfig controls the periodic stats reporter.
type StatsConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	// Schedule is a cron spec understood by robfig/cron, default "@every 1m".
	Schedule string `json:"schedule,omitempty"`
}

// HistoryConfig controls the optional local build-history ledger.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "./buildpulse.db" }
type HistoryConfig struct {
	Driver      string `json:"driver,omitempty"` // "none" (default) or "sqlite"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
	MaxRows     int    `json:"max_rows,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Defaults mirror the knobs the generator historically shipped with.
const (
	DefaultBaseURL        = "http://localhost:8080"
	DefaultProjects       = 25
	DefaultSuccessRate    = 0.85
	DefaultStartChance    = 0.7
	DefaultForceChance    = 0.1
	DefaultRequestTimeout = 10 * time.Second
	DefaultReadyRetries   = 30
	DefaultReadyBackoff   = 2 * time.Second
	DefaultIntervalMin    = 5 * time.Second
	DefaultIntervalMax    = 30 * time.Second
	DefaultDurationMin    = 30 * time.Second
	DefaultDurationMax    = 300 * time.Second
	DefaultStatsSchedule  = "@every 1m"
)

// Default returns a config that works with no file and no environment at all.
func Default() *Config {
	on := true
	return &Config{
		Remote: RemoteConfig{BaseURL: DefaultBaseURL},
		Demo:   DemoConfig{Projects: DefaultProjects},
		Stats:  StatsConfig{Enabled: &on},
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
		},
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables understood by the generator. These predate the config
// file and win over it, so container deployments keep working unchanged.
//
// The *_MIN/*_MAX variables are plain integers interpreted as seconds.
const (
	EnvBaseURL     = "BUILD_COUNTER_URL"
	EnvProjects    = "DEMO_PROJECTS"
	EnvIntervalMin = "DEMO_INTERVAL_MIN"
	EnvIntervalMax = "DEMO_INTERVAL_MAX"
	EnvDurationMin = "DEMO_BUILD_DURATION_MIN"
	EnvDurationMax = "DEMO_BUILD_DURATION_MAX"
	EnvSuccessRate = "DEMO_SUCCESS_RATE"
)

// ApplyEnv overlays recognized environment variables onto cfg.
// Unset or empty variables leave the config untouched.
func ApplyEnv(cfg *Config) error {
	if v, ok := lookup(EnvBaseURL); ok {
		cfg.Remote.BaseURL = v
	}
	if v, ok := lookup(EnvProjects); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q: %w", EnvProjects, v, err)
		}
		cfg.Demo.Projects = n
	}

	pairs := []struct {
		env string
		dst *string
	}{
		{EnvIntervalMin, &cfg.Demo.IntervalMin},
		{EnvIntervalMax, &cfg.Demo.IntervalMax},
		{EnvDurationMin, &cfg.Demo.BuildDurationMin},
		{EnvDurationMax, &cfg.Demo.BuildDurationMax},
	}
	for _, p := range pairs {
		v, ok := lookup(p.env)
		if !ok {
			continue
		}
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid seconds value %q: %w", p.env, v, err)
		}
		if secs < 0 {
			return fmt.Errorf("%s: must be >= 0", p.env)
		}
		*p.dst = (time.Duration(secs) * time.Second).String()
	}

	if v, ok := lookup(EnvSuccessRate); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid fraction %q: %w", EnvSuccessRate, v, err)
		}
		cfg.Demo.SuccessRate = &f
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

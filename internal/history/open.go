package history

import (
	"fmt"
	"strings"

	logx "buildpulse/pkg/logx"
)

// Open returns the store for the configured driver. An empty or "none" driver
// yields a no-op store so callers never need nil checks.
func Open(cfg Config, log logx.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return noopStore{}, nil
	case "sqlite":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("history: unknown driver %q", cfg.Driver)
	}
}

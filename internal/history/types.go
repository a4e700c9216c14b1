package history

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned by the no-op store; callers treat it as "not configured".
var ErrDisabled = errors.New("history: disabled")

// Record is one finished build.
type Record struct {
	FinishedAt time.Time
	Project    string
	BuildID    string
	ServerID   int
	Success    bool
	Forced     bool
	Took       time.Duration
}

type Store interface {
	AppendBuild(ctx context.Context, rec Record) error
	RecentBuilds(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

type Config struct {
	Driver      string // "none" or "sqlite"
	Path        string
	BusyTimeout time.Duration
	// MaxRows bounds the table; older rows are pruned. 0 means 10000.
	MaxRows int
}

// noopStore satisfies Store when history is not configured.
type noopStore struct{}

func (noopStore) AppendBuild(context.Context, Record) error { return ErrDisabled }
func (noopStore) RecentBuilds(context.Context, int) ([]Record, error) {
	return nil, ErrDisabled
}
func (noopStore) Close() error { return nil }

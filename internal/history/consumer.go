package history

import (
	"context"
	"sync"

	"buildpulse/internal/eventbus"
	logx "buildpulse/pkg/logx"
)

// Consumer tails the event bus and appends every finished build to the store.
type Consumer struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger

	mu    sync.Mutex
	unsub func()
	wg    sync.WaitGroup
}

func NewConsumer(store Store, bus eventbus.Bus, log logx.Logger) *Consumer {
	return &Consumer{store: store, bus: bus, log: log}
}

func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsub != nil {
		return
	}
	ch, unsub := c.bus.Subscribe(64)
	c.unsub = unsub

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				c.handle(ctx, ev)
			}
		}
	}()
}

func (c *Consumer) Stop() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub == nil {
		return
	}
	unsub()
	c.wg.Wait()
}

func (c *Consumer) handle(ctx context.Context, ev eventbus.Event) {
	if ev.Type != eventbus.TypeBuildFinished {
		return
	}
	fin, ok := ev.Data.(eventbus.BuildFinished)
	if !ok {
		return
	}
	err := c.store.AppendBuild(ctx, Record{
		FinishedAt: ev.Time,
		Project:    fin.Project,
		BuildID:    fin.BuildID,
		ServerID:   fin.ServerID,
		Success:    fin.Success,
		Forced:     fin.Forced,
		Took:       fin.Duration,
	})
	if err != nil && err != ErrDisabled {
		c.log.Warn("history append failed",
			logx.String("project", fin.Project),
			logx.String("build_id", fin.BuildID),
			logx.Err(err))
	}
}

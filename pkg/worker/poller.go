package worker

import (
	"context"
	"time"

	"github.com/bouwupdate/intake-api/pkg/logger"
)

// Task is invoked on every poll tick.
type Task func(ctx context.Context) error

// Poller runs a task on a fixed interval until its context ends.
type Poller struct {
	name     string
	interval time.Duration
	task     Task
	logger   *logger.Logger
}

func NewPoller(name string, interval time.Duration, task Task, log *logger.Logger) *Poller {
	if interval <= 0 {
		panic("poll interval must be greater than 0")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{name: name, interval: interval, task: task, logger: log}
}

func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting poller", "name", p.name, "interval", p.interval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down poller", "name", p.name)
			return
		case <-ticker.C:
			if err := p.task(ctx); err != nil {
				p.logger.Error(err, "Poll task failed", "name", p.name)
			}
		}
	}
}

package circulation

import (
	"context"
	"log/slog"
)

// compensations collects undo steps for a multi-step write. If the write
// fails, rollback runs them newest first.
type compensations struct {
	logger *slog.Logger
	steps  []compensation
}

type compensation struct {
	name string
	undo func(context.Context) error
}

func (c *compensations) add(name string, undo func(context.Context) error) {
	c.steps = append(c.steps, compensation{name: name, undo: undo})
}

func (c *compensations) rollback(ctx context.Context) {
	// Undo must run even if the request context is already cancelled.
	ctx = context.WithoutCancel(ctx)
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		c.logger.Warn("compensating failed write", "step", step.name)
		if err := step.undo(ctx); err != nil {
			c.logger.Error("compensation failed", "step", step.name, "error", err)
		}
	}
	c.steps = nil
}

package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// StallCoordinator brackets sensorless descents: it raises driver current
// to the homing current and enables stall reporting on the sensitive axes,
// and puts both back afterwards.
type StallCoordinator struct {
	drv Drivers
	es  Endstops
	cfg SensorlessConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewStallCoordinator returns a coordinator for the axes listed in cfg.
func NewStallCoordinator(drv Drivers, es Endstops, cfg SensorlessConfig) *StallCoordinator {
	return &StallCoordinator{drv: drv, es: es, cfg: cfg, sleep: sleepCtx}
}

type savedCurrent struct {
	axis Axis
	mA   int
}

type savedChopper struct {
	axis  Axis
	prior bool
}

// StallGuard holds the driver state saved by Enable.
// It must be released exactly once, further calls are no-ops.
type StallGuard struct {
	c *StallCoordinator

	chopper  []savedChopper
	armed    bool
	currents []savedCurrent

	released bool
}

// Enable snapshots and raises the current of each sensitive axis whose
// homing current differs from its present current, enables stall
// reporting, and arms the endstops. If any step fails, what was already
// changed is put back before returning.
func (c *StallCoordinator) Enable(ctx context.Context) (*StallGuard, error) {
	g := &StallGuard{c: c}

	for _, ax := range c.cfg.Axes {
		prior, err := c.drv.EnableStallGuard(ax.Axis)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("enable stallguard %s: %w", ax.Axis, err), g.release())
		}
		g.chopper = append(g.chopper, savedChopper{axis: ax.Axis, prior: prior})
	}

	c.es.ArmForHoming(true)
	g.armed = true

	for _, ax := range c.cfg.Axes {
		if ax.HomingCurrent <= 0 {
			continue
		}
		cur, err := c.drv.Current(ax.Axis)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("read current %s: %w", ax.Axis, err), g.release())
		}
		if cur == ax.HomingCurrent {
			continue
		}
		err = c.drv.SetCurrent(ax.Axis, ax.HomingCurrent)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("set current %s: %w", ax.Axis, err), g.release())
		}
		g.currents = append(g.currents, savedCurrent{axis: ax.Axis, mA: cur})
	}

	if len(g.currents) > 0 && c.cfg.Delay > 0 {
		err := c.sleep(ctx, c.cfg.Delay)
		if err != nil {
			return nil, multierr.Append(err, g.release())
		}
	}

	return g, nil
}

// Disable releases g. It is the counterpart of Enable.
func (c *StallCoordinator) Disable(ctx context.Context, g *StallGuard) error {
	if g == nil {
		return nil
	}
	return g.Release(ctx)
}

// Release restores the saved currents, disarms the endstops, and restores
// stall reporting, in that order. Every step is attempted and all errors
// are returned together.
func (g *StallGuard) Release(ctx context.Context) error {
	if g == nil || g.released {
		return nil
	}
	err := g.release()
	if len(g.currents) > 0 && g.c.cfg.Delay > 0 {
		err = multierr.Append(err, g.c.sleep(context.WithoutCancel(ctx), g.c.cfg.Delay))
	}
	return err
}

func (g *StallGuard) release() (err error) {
	g.released = true
	for i := len(g.currents) - 1; i >= 0; i-- {
		s := g.currents[i]
		if e := g.c.drv.SetCurrent(s.axis, s.mA); e != nil {
			err = multierr.Append(err, fmt.Errorf("restore current %s: %w", s.axis, e))
		}
	}
	if g.armed {
		g.c.es.ArmForHoming(false)
	}
	for i := len(g.chopper) - 1; i >= 0; i-- {
		s := g.chopper[i]
		if e := g.c.drv.DisableStallGuard(s.axis, s.prior); e != nil {
			err = multierr.Append(err, fmt.Errorf("disable stallguard %s: %w", s.axis, e))
		}
	}
	return err
}

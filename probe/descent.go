package probe

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// descendTo moves down to z at feedrate and returns the Z where the probe
// triggered. ErrNotTriggered is returned if z was reached without contact.
//
// Driver current, stall reporting and paused heaters are always restored
// before returning, and the trigger latch is cleared. A per-probe deploy is
// undone if the descent fails before moving.
func (p *Probe) descendTo(ctx context.Context, z, feedrate float64) (_ float64, err error) {
	if p.cfg.WaitForBed {
		err = p.d.Thermal.WaitUntilReached(ctx, Bed)
		if err != nil {
			return nan(), fmt.Errorf("wait for bed: %w", err)
		}
	}
	if p.cfg.WaitForHotend {
		err = p.d.Thermal.WaitUntilReached(ctx, Hotend)
		if err != nil {
			return nan(), fmt.Errorf("wait for hotend: %w", err)
		}
	}

	if p.cfg.PerProbeDeploy {
		err = p.actuate(ctx, true)
		if err != nil {
			return nan(), err
		}
	}
	// stow again when failing before the move starts
	moving := false
	defer func() {
		if p.cfg.PerProbeDeploy && !moving && err != nil {
			err = multierr.Append(err, p.actuate(context.WithoutCancel(ctx), false))
		}
	}()

	var guard *StallGuard
	if p.cfg.Sensorless.Enabled {
		guard, err = p.stall.Enable(ctx)
		if err != nil {
			return nan(), fmt.Errorf("stall detection: %w", err)
		}
		// normally released below; this catches the early returns
		defer func() { err = multierr.Append(err, guard.Release(ctx)) }()
	}

	quiet, err := p.pauseForProbing(ctx)
	if err != nil {
		return nan(), fmt.Errorf("quiet probing: %w", err)
	}

	p.log.Debug("descend", "z", z, "feedrate", feedrate)
	moving = true
	moveErr := p.d.Motion.MoveTo(ctx, p.d.Motion.CurrentPosition().WithZ(z), feedrate)

	triggered := p.d.Endstops.TriggerState()&p.cfg.TriggerMask != 0

	err = multierr.Combine(
		p.resumeAfterProbing(quiet),
		guard.Release(ctx),
	)
	if moveErr != nil || err != nil {
		p.d.Endstops.AcknowledgeTrigger()
		return nan(), multierr.Append(moveErr, err)
	}

	if triggered && p.cfg.PerProbeDeploy {
		err = p.actuate(ctx, false)
		if err != nil {
			p.d.Endstops.AcknowledgeTrigger()
			return nan(), fmt.Errorf("%w: stow after descent: %w", ErrNotTriggered, err)
		}
	}

	p.d.Endstops.AcknowledgeTrigger()

	err = p.d.Motion.SyncPositionFromSteppers(AxisZ)
	if err != nil {
		return nan(), fmt.Errorf("sync Z position: %w", err)
	}

	if !triggered {
		return nan(), ErrNotTriggered
	}
	return p.d.Motion.CurrentPosition().Z, nil
}

// tare zeroes a strain-gauge probe.
func (p *Probe) tare(ctx context.Context) error {
	if !p.cfg.Tare {
		return nil
	}
	p.log.Debug("taring probe")
	err := p.d.Tarer.SetTare(true)
	if err == nil {
		err = p.sleep(ctx, p.cfg.TareTime)
		err = multierr.Append(err, p.d.Tarer.SetTare(false))
	}
	if err == nil {
		err = p.sleep(ctx, p.cfg.TareDelay)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrTareFailed, err)
	}
	p.d.Endstops.AcknowledgeTrigger()
	return nil
}

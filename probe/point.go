package probe

import (
	"context"
	"fmt"
	"math"

	"github.com/mastercactapus/zprobe/coord"
)

// Request describes a single point measurement.
type Request struct {
	X, Y float64

	// Raise is what to do after a successful measurement.
	Raise RaisePolicy

	// Verbose above 2 logs the result.
	Verbose int

	// ProbeRelative means X/Y is where the probe contact point should go,
	// rather than the nozzle.
	ProbeRelative bool

	SanityCheck bool
}

// ProbeAtPoint measures the bed height at (x, y), returning NaN on failure.
func (p *Probe) ProbeAtPoint(ctx context.Context, x, y float64, raise RaisePolicy, verbose int, probeRelative, sanityCheck bool) float64 {
	z, err := p.ProbeAt(ctx, Request{
		X:             x,
		Y:             y,
		Raise:         raise,
		Verbose:       verbose,
		ProbeRelative: probeRelative,
		SanityCheck:   sanityCheck,
	})
	if err != nil {
		return nan()
	}
	return z
}

// ProbeAt moves to the requested point, deploys, measures, and applies the
// raise policy. The returned height includes the probe Z offset.
//
// Unreachable points fail with ErrUnreachable before anything moves.
// Any other failure leaves the probe stowed.
func (p *Probe) ProbeAt(ctx context.Context, r Request) (float64, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	target, err := p.nozzleTarget(r)
	if err != nil {
		p.log.Debug("position not reachable", "x", r.X, "y", r.Y, "probe_relative", r.ProbeRelative)
		return nan(), err
	}

	z, err := p.probeAt(ctx, r, target)
	if p.d.Safety != nil && p.d.Safety.Overpressure() {
		// the latch never outlives the point it tripped on
		p.d.Safety.ClearOverpressure()
		if err == nil {
			err = ErrOverpressure
		}
	}
	if err != nil {
		serr := p.setDeployed(context.WithoutCancel(ctx), false)
		if serr != nil {
			p.log.Error("stow after failed probe", "err", serr)
		}
		p.status("Probing Failed")
		if !p.cfg.RetryAndRecover {
			p.log.Error("probing failed", "x", r.X, "y", r.Y, "err", err)
		}
		return nan(), err
	}
	return z, nil
}

// nozzleTarget converts r into a nozzle position, checking it can be reached.
func (p *Probe) nozzleTarget(r Request) (coord.Point, error) {
	if math.IsNaN(r.X) || math.IsNaN(r.Y) {
		return coord.Point{}, fmt.Errorf("(%g, %g): %w", r.X, r.Y, ErrUnreachable)
	}
	pos := p.d.Motion.CurrentPosition()
	z := pos.Z
	if p.cfg.SafeCeiling > 0 {
		z = math.Min(z, p.cfg.SafeCeiling)
	}
	target := coord.Point{X: r.X, Y: r.Y, Z: z}

	if r.ProbeRelative {
		if p.d.ProbeReach != nil && !p.d.ProbeReach.CanReach(r.X, r.Y) {
			return target, fmt.Errorf("probe to (%g, %g): %w", r.X, r.Y, ErrUnreachable)
		}
		target = target.SubXY(p.Offset())
	}
	if p.d.Reach != nil && !p.d.Reach.CanReach(target.X, target.Y) {
		return target, fmt.Errorf("nozzle to (%g, %g): %w", target.X, target.Y, ErrUnreachable)
	}
	return target, nil
}

func (p *Probe) probeAt(ctx context.Context, r Request, target coord.Point) (float64, error) {
	err := p.d.Motion.MoveTo(ctx, target, p.cfg.XYFeedrate)
	if err != nil {
		return nan(), fmt.Errorf("move to point: %w", err)
	}

	err = p.setDeployed(ctx, true)
	if err != nil {
		return nan(), fmt.Errorf("deploy: %w", err)
	}

	z, err := p.measure(ctx, r.SanityCheck)
	if err != nil {
		return nan(), err
	}
	z += p.Offset().Z

	switch r.Raise {
	case Raise, BigRaise:
		dz := p.cfg.ClearanceBetween
		if r.Raise == BigRaise {
			dz = p.cfg.BigRaise
		}
		err = p.moveZ(ctx, p.d.Motion.CurrentPosition().Z+dz, p.cfg.FastFeedrate)
		if err != nil {
			return nan(), fmt.Errorf("raise after probe: %w", err)
		}
	case Stow, LastStow:
		err = p.setDeployed(ctx, false)
		if err != nil {
			return nan(), fmt.Errorf("stow: %w", err)
		}
	}

	if r.Verbose > 2 {
		p.log.Info(fmt.Sprintf("Bed X: %.3f Y: %.3f Z: %.3f", r.X, r.Y, z))
	}
	return z, nil
}

package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/mastercactapus/zprobe/coord"
)

// Measure probes straight down from the current position and returns the
// nozzle Z at which the probe triggered, reduced over the configured
// number of samples. The probe must already be deployed.
//
// With sanityCheck set, a sample that triggers more than the clearance
// above where the bed is expected fails with ErrTriggeredEarly.
func (p *Probe) Measure(ctx context.Context, sanityCheck bool) (float64, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.measure(ctx, sanityCheck)
}

// RunZProbe is Measure returning NaN on failure.
func (p *Probe) RunZProbe(ctx context.Context, sanityCheck bool) float64 {
	z, err := p.Measure(ctx, sanityCheck)
	if err != nil {
		p.log.Warn("probe measurement failed", "err", err)
		return nan()
	}
	return z
}

func (p *Probe) measure(ctx context.Context, sanityCheck bool) (float64, error) {
	zoffs := -p.Offset().Z

	// stop before going low enough to do damage
	lowPoint := -10.0
	if p.d.Motion.IsHomed(AxisZ) {
		lowPoint = zoffs + p.cfg.LowPoint
	}

	try := func(label string, feedrate, clearance float64) (float64, error) {
		z, err := p.descendTo(ctx, lowPoint, feedrate)
		if err != nil {
			return z, fmt.Errorf("%s probe: %w", label, err)
		}
		if sanityCheck && z > zoffs+clearance {
			return z, fmt.Errorf("%s probe at %.3f: %w", label, z, ErrTriggeredEarly)
		}
		return z, nil
	}

	n := p.cfg.Samples
	if n == 2 {
		return p.measureDouble(ctx, try)
	}

	if p.cfg.FastFeedrate != p.cfg.SlowFeedrate {
		err := p.approach(ctx)
		if err != nil {
			return nan(), err
		}
	}

	total := p.cfg.TotalSamples()
	samples := make([]float64, 0, total)
	for i := range total {
		err := p.tare(ctx)
		if err != nil {
			return nan(), err
		}
		z, err := try("slow", p.cfg.SlowFeedrate, p.cfg.ClearanceMulti)
		if err != nil {
			return nan(), fmt.Errorf("sample %d/%d: %w", i+1, total, err)
		}
		p.log.Debug("probe sample", "n", i+1, "z", z)
		samples = insertSorted(samples, z)

		if i < total-1 {
			err = p.moveZ(ctx, z+p.cfg.ClearanceMulti, p.cfg.FastFeedrate)
			if err != nil {
				return nan(), fmt.Errorf("raise between probes: %w", err)
			}
		}
	}

	if n == 1 {
		return samples[0], nil
	}
	return trimmedMean(samples, p.cfg.ExtraSamples), nil
}

type descent func(label string, feedrate, clearance float64) (float64, error)

// measureDouble takes a fast and a slow sample. With agreement retries
// configured, further pairs are taken until the two agree.
func (p *Probe) measureDouble(ctx context.Context, try descent) (float64, error) {
	fastSample := func() (float64, error) {
		err := p.tare(ctx)
		if err != nil {
			return nan(), err
		}
		fast, err := try("fast", p.cfg.FastFeedrate, p.cfg.ClearanceBetween)
		if err != nil {
			return nan(), err
		}
		err = p.moveZ(ctx, fast+p.cfg.ClearanceMulti, p.cfg.FastFeedrate)
		if err != nil {
			return nan(), fmt.Errorf("raise between probes: %w", err)
		}
		return fast, p.tare(ctx)
	}

	ag := p.cfg.Agreement
	samples := make([]float64, 0, 2*ag.Retries+2)
	fast, err := fastSample()
	if err != nil {
		return nan(), err
	}
	samples = append(samples, fast)
	for attempt := 0; ; attempt++ {
		slow, err := try("slow", p.cfg.SlowFeedrate, p.cfg.ClearanceMulti)
		if err != nil {
			return nan(), err
		}
		samples = append(samples, slow)
		p.log.Debug("double probe", "fast", fast, "slow", slow, "attempt", attempt)

		if ag.Retries == 0 || math.Abs(fast-slow) < ag.Deviation {
			if p.cfg.Unweighted {
				return slow, nil
			}
			return weightedDouble(fast, slow), nil
		}
		if attempt == ag.Retries {
			break
		}

		err = p.moveZ(ctx, slow+p.cfg.ClearanceMulti, p.cfg.FastFeedrate)
		if err != nil {
			return nan(), fmt.Errorf("raise between probes: %w", err)
		}
		if attempt < len(ag.MoveAway) {
			cur := p.d.Motion.CurrentPosition()
			off := ag.MoveAway[attempt]
			err = p.d.Motion.MoveTo(ctx, cur.WithXY(coord.Point{X: cur.X + off.X, Y: cur.Y + off.Y}), p.cfg.XYFeedrate)
			if err != nil {
				return nan(), fmt.Errorf("move away: %w", err)
			}
		}
		fast, err = fastSample()
		if err != nil {
			return nan(), fmt.Errorf("retry %d/%d: %w", attempt+1, ag.Retries, err)
		}
		samples = append(samples, fast)
	}

	slices.Sort(samples)
	p.log.Warn("double probe samples never agreed", "samples", len(samples), "deviation", ag.Deviation)
	return innerMean(samples), nil
}

// approach moves down quickly when far above the bed so the slow descent
// starts close to it. If the probe triggers on the way, it backs off.
func (p *Probe) approach(ctx context.Context) error {
	z := p.cfg.ClearanceDeploy + 5
	if off := p.Offset().Z; off < 0 {
		z -= off
	}
	if p.d.Motion.CurrentPosition().Z <= z {
		return nil
	}

	hit, err := p.descendTo(ctx, z, p.cfg.FastFeedrate)
	if errors.Is(err, ErrNotTriggered) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fast approach: %w", err)
	}
	err = p.moveZ(ctx, hit+p.cfg.ClearanceBetween, p.cfg.FastFeedrate)
	if err != nil {
		return fmt.Errorf("raise after approach: %w", err)
	}
	return nil
}

package probe

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// quietState remembers what pauseForProbing changed.
type quietState struct {
	heaters, fans bool
	xy            []Axis
}

// pauseForProbing silences heaters, fans and steppers that would add
// noise to the probe signal, then waits for things to settle.
// Extruder steppers stay off afterwards; the next extrusion enables them.
func (p *Probe) pauseForProbing(ctx context.Context) (*quietState, error) {
	q := p.cfg.Quiet
	if !q.Enabled() {
		return nil, nil
	}
	st := &quietState{}
	if q.Heaters {
		p.d.Thermal.PauseHeaters(true)
		st.heaters = true
	}
	if q.Fans {
		p.d.Thermal.PauseFans(true)
		st.fans = true
	}
	if q.ESteppers {
		err := p.d.Drivers.SetEnabled(AxisE, false)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("disable E stepper: %w", err), p.resumeAfterProbing(st))
		}
	}
	if q.XYSteppers {
		for _, ax := range []Axis{AxisX, AxisY} {
			if !p.d.Drivers.Enabled(ax) {
				continue
			}
			err := p.d.Drivers.SetEnabled(ax, false)
			if err != nil {
				return nil, multierr.Append(fmt.Errorf("disable %s stepper: %w", ax, err), p.resumeAfterProbing(st))
			}
			st.xy = append(st.xy, ax)
		}
	}

	delay := max(q.Delay, MinQuietDelay)
	err := p.sleep(ctx, delay)
	if err != nil {
		return nil, multierr.Append(err, p.resumeAfterProbing(st))
	}
	return st, nil
}

func (p *Probe) resumeAfterProbing(st *quietState) (err error) {
	if st == nil {
		return nil
	}
	if st.heaters {
		p.d.Thermal.PauseHeaters(false)
	}
	if st.fans {
		p.d.Thermal.PauseFans(false)
	}
	for _, ax := range st.xy {
		if e := p.d.Drivers.SetEnabled(ax, true); e != nil {
			err = multierr.Append(err, fmt.Errorf("enable %s stepper: %w", ax, e))
		}
	}
	return err
}

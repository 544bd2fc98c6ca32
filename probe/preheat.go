package probe

import (
	"context"
	"fmt"
)

// Preheat raises the hotend and bed targets to the given temperatures if
// they are currently lower. Unless early is set it also waits for any
// heater that is more than its window below the requested temperature.
// A zero temperature leaves that heater alone.
func (p *Probe) Preheat(ctx context.Context, hotend, bed float64, early bool) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.preheat(ctx, hotend, bed, early)
}

func (p *Probe) preheat(ctx context.Context, hotend, bed float64, early bool) error {
	t := p.d.Thermal
	if t == nil {
		return nil
	}
	if hotend > t.Target(Hotend) {
		p.log.Debug("preheating", "heater", Hotend, "target", hotend)
		err := t.SetTarget(Hotend, hotend)
		if err != nil {
			return fmt.Errorf("set %s target: %w", Hotend, err)
		}
	}
	if bed > t.Target(Bed) {
		p.log.Debug("preheating", "heater", Bed, "target", bed)
		err := t.SetTarget(Bed, bed)
		if err != nil {
			return fmt.Errorf("set %s target: %w", Bed, err)
		}
	}
	if early {
		return nil
	}

	if hotend > 0 && hotend > t.Temperature(Hotend)+p.cfg.TempWindow {
		err := t.WaitUntilReached(ctx, Hotend)
		if err != nil {
			return fmt.Errorf("wait for %s: %w", Hotend, err)
		}
	}
	if bed > 0 && bed > t.Temperature(Bed)+p.cfg.BedTempWindow {
		err := t.WaitUntilReached(ctx, Bed)
		if err != nil {
			return fmt.Errorf("wait for %s: %w", Bed, err)
		}
	}
	return nil
}

package probe

import (
	"context"
	"fmt"
	"math"
)

// Deploy is shorthand for SetDeployed(ctx, true).
func (p *Probe) Deploy(ctx context.Context) error { return p.SetDeployed(ctx, true) }

// Stow is shorthand for SetDeployed(ctx, false).
func (p *Probe) Stow(ctx context.Context) error { return p.SetDeployed(ctx, false) }

// Deployed reports whether the probe endstop is enabled.
func (p *Probe) Deployed() bool { return p.d.Endstops.ProbeEnabled() }

// SetDeployed moves the device into (deploy) or out of its sensing
// position. Nothing happens if the device is already in the requested
// state. On success the probe endstop matches the request.
func (p *Probe) SetDeployed(ctx context.Context, deploy bool) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.setDeployed(ctx, deploy)
}

func (p *Probe) setDeployed(ctx context.Context, deploy bool) error {
	if p.d.Endstops.ProbeEnabled() == deploy {
		return nil
	}
	p.log.Debug("set deployed", "deploy", deploy, "kind", p.cfg.Kind)

	// fixed probes only raise for deploy, unless someone has to reach in
	if deploy || !p.cfg.FixedMount || p.cfg.PauseBeforeDeployStow {
		err := p.doZRaise(ctx, math.Max(p.cfg.ClearanceBetween, p.cfg.ClearanceDeploy))
		if err != nil {
			return fmt.Errorf("clearance raise: %w", err)
		}
	}

	switch {
	case p.cfg.Kind == KindDock && !p.d.Motion.IsHomed(AxisX),
		p.cfg.Kind == KindScripted && !p.allHomed():
		p.alert("Home XYZ first")
		p.d.Motion.EmergencyStop("probe actuation before homing")
		return fmt.Errorf("%s probe: %w", p.cfg.Kind, ErrNotHomed)
	}

	oldXY := p.d.Motion.CurrentPosition()

	if p.cfg.TriggerReadback {
		if p.d.Endstops.ProbeTriggered() == deploy {
			if !deploy {
				// triggered-when-stowed probes would block their own stow move
				p.d.Endstops.EnableProbe(false)
			}
			err := p.actuate(ctx, deploy)
			if err != nil {
				return err
			}
		}
		if p.d.Endstops.ProbeTriggered() == deploy {
			p.log.Error("Z-Probe failed", "deploy", deploy)
			p.alert("Err: ZPROBE")
			p.d.Motion.EmergencyStop("probe actuation failed")
			return ErrActuationFailed
		}
	} else {
		err := p.actuate(ctx, deploy)
		if err != nil {
			return err
		}
	}

	if deploy && (p.cfg.PreheatHotend > 0 || p.cfg.PreheatBed > 0) {
		err := p.preheat(ctx, p.cfg.PreheatHotend, p.cfg.PreheatBed, false)
		if err != nil {
			return fmt.Errorf("preheat: %w", err)
		}
	}

	cur := p.d.Motion.CurrentPosition()
	if !cur.EqualXY(oldXY) {
		err := p.d.Motion.MoveTo(ctx, cur.WithXY(oldXY), p.cfg.XYFeedrate)
		if err != nil {
			return fmt.Errorf("restore position: %w", err)
		}
	}

	p.d.Endstops.EnableProbe(deploy)
	return nil
}

func (p *Probe) allHomed() bool {
	return p.d.Motion.IsHomed(AxisX) && p.d.Motion.IsHomed(AxisY) && p.d.Motion.IsHomed(AxisZ)
}

// actuate performs the device specific deploy or stow action.
func (p *Probe) actuate(ctx context.Context, deploy bool) error {
	if p.cfg.PauseBeforeDeployStow {
		msg := "Stow probe"
		if deploy {
			msg = "Deploy probe"
		}
		p.status(msg)
		err := p.d.Prompter.Confirm(ctx, msg)
		if err != nil {
			return fmt.Errorf("wait for operator: %w", err)
		}
	}

	var err error
	switch p.cfg.Kind {
	case KindNone:
	case KindSolenoid:
		err = p.d.Pin.SetDigital(deploy)
	case KindDock:
		err = p.dockSled(ctx, !deploy)
	case KindServo:
		angle := p.cfg.StowAngle
		if deploy {
			angle = p.cfg.DeployAngle
		}
		err = p.d.Servo.SetAngle(angle)
	case KindScripted:
		moves := p.cfg.StowMoves
		if deploy {
			moves = p.cfg.DeployMoves
		}
		err = p.runMoves(ctx, moves)
	case KindLinearRail:
		x := p.cfg.RailStowX
		if deploy {
			x = p.cfg.RailDeployX
		}
		err = p.moveX(ctx, x)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", p.cfg.Kind, verb(deploy), err)
	}
	return nil
}

func verb(deploy bool) string {
	if deploy {
		return "deploy"
	}
	return "stow"
}

// dockSled parks at the dock to pick up or leave the sled. Stowing stops
// 1mm short so the sled is released rather than pushed.
func (p *Probe) dockSled(ctx context.Context, stow bool) error {
	x := p.cfg.DockX
	if stow {
		x--
	}
	err := p.moveX(ctx, x)
	if err != nil {
		return err
	}
	if p.cfg.DockSolenoid {
		return p.d.Pin.SetDigital(!stow)
	}
	return nil
}

func (p *Probe) moveX(ctx context.Context, x float64) error {
	pos := p.d.Motion.CurrentPosition()
	pos.X = x
	return p.d.Motion.MoveTo(ctx, pos, p.cfg.XYFeedrate)
}

func (p *Probe) runMoves(ctx context.Context, moves []Waypoint) error {
	for i, w := range moves {
		feed := w.Feedrate
		if feed <= 0 {
			feed = p.cfg.XYFeedrate
		}
		err := p.d.Motion.MoveTo(ctx, w.Point, feed)
		if err != nil {
			return fmt.Errorf("move %d: %w", i+1, err)
		}
	}
	return nil
}

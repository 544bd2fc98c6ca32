// Package probe measures bed height with a Z probe.
//
// A Probe deploys the sensing device, descends until it triggers,
// converts the trigger position into a height and stows the device,
// coordinating with the heaters and stepper drivers while doing so.
// Machine subsystems are consumed through the interfaces in collab.go.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mastercactapus/zprobe/coord"
)

// Deps are the machine subsystems a Probe works with.
// Motion and Endstops are required, the rest depend on the Config.
type Deps struct {
	Motion   Motion
	Endstops Endstops
	Thermal  Thermal
	Drivers  Drivers

	Pin   OutputPin
	Servo Servo
	Tarer Tarer

	Prompter Prompter
	Notifier Notifier
	Safety   SafetyMonitor

	// Reach is the nozzle envelope, nil is unbounded.
	Reach Reacher
	// ProbeReach is where the probe contact point can go, nil uses Reach
	// shifted by the probe offset.
	ProbeReach Reacher

	Logger *slog.Logger
}

// Probe runs probing operations. Public methods are serialized.
type Probe struct {
	cfg Config
	d   Deps
	log *slog.Logger

	stall *StallCoordinator

	mx sync.Mutex

	offMx  sync.RWMutex
	offset coord.Point

	sleep func(ctx context.Context, d time.Duration) error
}

// New validates cfg against the provided deps and returns a Probe.
func New(cfg Config, d Deps) (*Probe, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if d.Motion == nil || d.Endstops == nil {
		return nil, errors.New("motion and endstops are required")
	}
	switch {
	case cfg.Kind == KindSolenoid && d.Pin == nil,
		cfg.Kind == KindDock && cfg.DockSolenoid && d.Pin == nil:
		return nil, fmt.Errorf("%s probe needs an output pin", cfg.Kind)
	case cfg.Kind == KindServo && d.Servo == nil:
		return nil, errors.New("servo probe needs a servo")
	case cfg.Tare && d.Tarer == nil:
		return nil, errors.New("tare needs a tare output")
	case (cfg.Sensorless.Enabled || cfg.Quiet.ESteppers || cfg.Quiet.XYSteppers) && d.Drivers == nil:
		return nil, errors.New("sensorless and quiet stepper options need drivers")
	case (cfg.WaitForBed || cfg.WaitForHotend || cfg.Quiet.Heaters || cfg.Quiet.Fans ||
		cfg.PreheatBed > 0 || cfg.PreheatHotend > 0) && d.Thermal == nil:
		return nil, errors.New("heater options need a thermal manager")
	case cfg.PauseBeforeDeployStow && d.Prompter == nil:
		return nil, errors.New("manual deploy needs a prompter")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	p := &Probe{
		cfg:    cfg,
		d:      d,
		log:    d.Logger.With("component", "probe"),
		offset: cfg.Offset,
		sleep:  sleepCtx,
	}
	if d.Drivers != nil {
		p.stall = NewStallCoordinator(d.Drivers, d.Endstops, cfg.Sensorless)
		p.stall.sleep = func(ctx context.Context, dur time.Duration) error { return p.sleep(ctx, dur) }
	}
	return p, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config returns the configuration the probe was created with.
func (p *Probe) Config() Config { return p.cfg }

// Offset returns the nozzle to probe offset.
func (p *Probe) Offset() coord.Point {
	p.offMx.RLock()
	defer p.offMx.RUnlock()
	return p.offset
}

// SetOffset replaces the nozzle to probe offset.
func (p *Probe) SetOffset(off coord.Point) error {
	if off.IsNaN() {
		return errors.New("offset must be a number")
	}
	p.offMx.Lock()
	p.offset = off
	p.offMx.Unlock()
	p.log.Info("probe offset changed", "x", off.X, "y", off.Y, "z", off.Z)
	return nil
}

// DoZRaise raises the nozzle to z, adding the probe depth when the
// probe hangs below the nozzle. It never lowers.
func (p *Probe) DoZRaise(ctx context.Context, z float64) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.doZRaise(ctx, z)
}

func (p *Probe) doZRaise(ctx context.Context, z float64) error {
	if off := p.Offset().Z; off < 0 {
		z -= off
	}
	return p.zClearance(ctx, z)
}

// zClearance moves up to z if below it.
func (p *Probe) zClearance(ctx context.Context, z float64) error {
	pos := p.d.Motion.CurrentPosition()
	if pos.Z >= z {
		return nil
	}
	return p.moveZ(ctx, z, p.cfg.FastFeedrate)
}

func (p *Probe) moveZ(ctx context.Context, z, feedrate float64) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	return p.d.Motion.MoveTo(ctx, p.d.Motion.CurrentPosition().WithZ(z), feedrate)
}

// Init puts the device in its resting state. Servo probes are stowed.
func (p *Probe) Init(ctx context.Context) error {
	if p.cfg.Kind != KindServo {
		return nil
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	p.log.Debug("stowing servo probe")
	return p.d.Servo.SetAngle(p.cfg.StowAngle)
}

func (p *Probe) status(msg string) {
	if p.d.Notifier != nil {
		p.d.Notifier.Status(msg)
	}
}

func (p *Probe) alert(msg string) {
	if p.d.Notifier != nil {
		p.d.Notifier.Alert(msg)
	}
}

func nan() float64 { return math.NaN() }

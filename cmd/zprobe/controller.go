package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/machine"
	"github.com/mastercactapus/zprobe/machine/grbl"
	"github.com/mastercactapus/zprobe/probe"
	"github.com/mastercactapus/zprobe/sim"
	"github.com/mastercactapus/zprobe/spjs"
)

// controller is a connected machine.
type controller struct {
	deps probe.Deps

	home   func(ctx context.Context) error
	resume func() error
	// run is nil when the controller cannot run G-code.
	run func(ctx context.Context, src string) error

	// state and hold are nil when the controller does not report them.
	state chan machine.State
	hold  chan string
}

type controllerOptions struct {
	kind       string
	port       string
	baud       int
	spjsURL    string
	servoScale float64
}

func newController(opt controllerOptions) (*controller, error) {
	switch opt.kind {
	case "grbl":
		var adapter machine.Adapter
		if opt.spjsURL != "" {
			adapter = grbl.NewSPJSAdapter(spjs.NewSPJS(opt.spjsURL), opt.port, opt.baud)
		} else {
			sa, err := grbl.OpenSerial(opt.port, opt.baud)
			if err != nil {
				return nil, fmt.Errorf("open '%s': %w", opt.port, err)
			}
			adapter = sa
		}
		return newGrblController(adapter, opt.servoScale), nil
	case "sim":
		return newSimController(sim.NewMachine(coord.Point{X: 0, Y: 0, Z: 50})), nil
	}
	return nil, errors.New("unknown controller '" + opt.kind + "', expected grbl or sim")
}

func newGrblController(a machine.Adapter, servoScale float64) *controller {
	m := machine.NewMachine(a)
	m.ServoScale = servoScale
	return &controller{
		deps: probe.Deps{
			Motion:   m,
			Endstops: m,
			Pin:      m,
			Servo:    m,
			Prompter: m,
		},
		home:   m.Home,
		resume: func() error { return a.WriteByte(machine.RealtimeCycleStart) },
		run:    m.Run,
		state:  a.State(),
		hold:   m.HoldMessage(),
	}
}

func newSimController(m *sim.Machine) *controller {
	if m.Surface == nil && len(m.Contacts) == 0 {
		m.Surface = sim.FlatBed(0)
	}
	p := newChanPrompter()
	deps := m.Deps()
	deps.Prompter = p
	return &controller{
		deps:   deps,
		home:   m.Home,
		resume: p.Resume,
		hold:   p.messages,
	}
}

// chanPrompter holds until Resume is called.
type chanPrompter struct {
	messages chan string
	resume   chan struct{}
}

func newChanPrompter() *chanPrompter {
	return &chanPrompter{
		messages: make(chan string, 1),
		resume:   make(chan struct{}),
	}
}

func (c *chanPrompter) Confirm(ctx context.Context, msg string) error {
	select {
	case c.messages <- msg:
	default:
	}
	select {
	case <-c.resume:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case c.messages <- "-":
	default:
	}
	return nil
}

// Resume releases a waiting Confirm, failing if nothing is waiting.
func (c *chanPrompter) Resume() error {
	select {
	case c.resume <- struct{}{}:
		return nil
	default:
		return errors.New("not waiting for the operator")
	}
}

package machine

import (
	"io"

	"github.com/mastercactapus/zprobe/coord"
)

// Realtime commands are executed by the controller as soon as they are
// received, ahead of any queued lines.
const (
	RealtimeStatus     byte = '?'
	RealtimeCycleStart byte = '~'
	RealtimeReset      byte = 0x18
)

// ProbeResult is a probe report from the controller.
type ProbeResult struct {
	coord.Point
	// Valid is false if the move ended without contact.
	Valid bool
}

// A ProbeReporter collects the probe reports sent by a controller.
//
// The report of a probing move must be available from Probes as soon as
// the write of that move has returned.
type ProbeReporter interface {
	// ResetProbes discards all reports received so far.
	ResetProbes()
	Probes() []ProbeResult
}

// A StateReporter tracks controller status reports.
type StateReporter interface {
	// State delivers status reports as they arrive, dropping them if
	// nobody is receiving.
	State() chan State
	CurrentState() State
}

// An Adapter is a connection to a controller that runs G-code lines in
// order. Write and ReadFrom return after every line has been executed.
type Adapter interface {
	ProbeReporter
	StateReporter

	// WriteByte sends a realtime command.
	WriteByte(byte) error
	io.Writer
	io.ReaderFrom
}

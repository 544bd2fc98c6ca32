package grbl

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/mastercactapus/zprobe/machine"
)

// StatusInterval is how often a status report is requested.
const StatusInterval = 250 * time.Millisecond

// SerialAdapter drives a Grbl controller over a serial connection,
// polling it for status reports.
type SerialAdapter struct {
	*Conn

	mx    sync.Mutex
	last  machine.State
	state chan machine.State
	done  chan struct{}
}

var _ machine.Adapter = &SerialAdapter{}

// OpenSerial opens a Grbl controller on the named serial port.
func OpenSerial(name string, baud int) (*SerialAdapter, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, err
	}
	return NewSerialAdapter(port), nil
}

func NewSerialAdapter(rw io.ReadWriter) *SerialAdapter {
	adapter := &SerialAdapter{
		Conn:  NewConn(rw),
		state: make(chan machine.State),
		done:  make(chan struct{}),
	}
	go adapter.pollLoop()
	go adapter.readLoop()

	return adapter
}

// Close stops polling and closes the port.
func (adapter *SerialAdapter) Close() error {
	err := adapter.Conn.Close()
	adapter.mx.Lock()
	select {
	case <-adapter.done:
	default:
		close(adapter.done)
	}
	adapter.mx.Unlock()
	return err
}

func (adapter *SerialAdapter) pollLoop() {
	t := time.NewTicker(StatusInterval)
	defer t.Stop()
	for {
		select {
		case <-adapter.done:
			return
		case <-t.C:
			if err := adapter.WriteByte(machine.RealtimeStatus); err != nil {
				log.Println("ERROR: request status:", err)
			}
		}
	}
}

// readLoop keeps reading so writes see their acknowledgements, and
// tracks status reports.
func (adapter *SerialAdapter) readLoop() {
	buf := make([]byte, 1024)
	for {
		n, err := adapter.Read(buf)
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
			adapter.Close()
			return
		}
		if err != nil {
			log.Println("ERROR: read from port:", err)
			continue
		}
		if n == 0 || buf[0] != '<' {
			continue
		}
		adapter.mx.Lock()
		stat, err := parseStatus(adapter.last, string(buf[:n]))
		if err == nil {
			adapter.last = *stat
		}
		adapter.mx.Unlock()
		if err != nil {
			log.Println("ERROR: parse status:", err)
			continue
		}
		select {
		case adapter.state <- *stat:
		default:
		}
	}
}

func (adapter *SerialAdapter) State() chan machine.State { return adapter.state }

func (adapter *SerialAdapter) CurrentState() machine.State {
	adapter.mx.Lock()
	state := adapter.last
	adapter.mx.Unlock()
	return state
}

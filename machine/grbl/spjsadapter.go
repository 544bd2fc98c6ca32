package grbl

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mastercactapus/zprobe/machine"
	"github.com/mastercactapus/zprobe/spjs"
)

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// SPJSAdapter drives a Grbl controller attached to a
// serial-port-json-server.
type SPJSAdapter struct {
	probeLog

	sp   *spjs.SPJS
	port string
	baud int

	cmds    chan adapterMessage
	waiting map[string]chan error

	mx    sync.Mutex
	last  machine.State
	state chan machine.State
}

var _ machine.Adapter = &SPJSAdapter{}

type adapterMessage struct {
	spjs.JSON
	wait chan error
}

// NewSPJSAdapter drives a Grbl controller on port through sp, opening the
// port at baud when the server reports it closed.
func NewSPJSAdapter(sp *spjs.SPJS, port string, baud int) *SPJSAdapter {
	adapter := &SPJSAdapter{
		sp:      sp,
		port:    port,
		baud:    baud,
		waiting: make(map[string]chan error, 100),
		cmds:    make(chan adapterMessage, 1000),
		state:   make(chan machine.State),
	}
	go adapter.loop()

	return adapter
}
func (adapter *SPJSAdapter) CurrentState() machine.State {
	adapter.mx.Lock()
	defer adapter.mx.Unlock()
	return adapter.last
}
func (adapter *SPJSAdapter) setMachineState(state machine.State) {
	adapter.mx.Lock()
	defer adapter.mx.Unlock()
	adapter.last = state
	select {
	case adapter.state <- state:
	default:
	}
}
func (adapter *SPJSAdapter) loop() {
	for {
		select {
		case resp := <-adapter.sp.Messages():
			switch msg := resp.(type) {
			case *spjs.DataFrame:
				if msg.Data == "" {
					continue
				}
				// reports are handled before the Complete of their move
				switch {
				case msg.Data[0] == '<':
					stat, err := parseStatus(adapter.CurrentState(), msg.Data)
					if err != nil {
						log.Println("ERROR: parse status:", err)
						continue
					}
					adapter.setMachineState(*stat)
				case msg.Data[0] == '[':
					adapter.record(msg.Data)
				case strings.HasPrefix(msg.Data, "Grbl"):
					adapter.ResetProbes()
				}
			case *spjs.CmdStatus:
				switch msg.Cmd {
				case "WipedQueue":
					for key, ch := range adapter.waiting {
						ch <- errors.New("wiped queue")
						delete(adapter.waiting, key)
					}
				case "Complete":
					if adapter.waiting[msg.ID] != nil {
						adapter.waiting[msg.ID] <- nil
						delete(adapter.waiting, msg.ID)
					}
				}
			case *spjs.SerialPortList:
				for _, port := range msg.SerialPorts {
					if port.Name != adapter.port {
						continue
					}
					if !port.IsOpen {
						go adapter.open()
					}
				}
			}
		case msg := <-adapter.cmds:
			err := adapter.sp.SendJSON(msg.JSON)
			if err != nil {
				if msg.wait != nil {
					msg.wait <- err
				}
				continue
			}
			if msg.wait != nil {
				adapter.waiting[msg.Data[len(msg.Data)-1].ID] = msg.wait
			}
		}
	}
}

func (adapter *SPJSAdapter) open() {
	err := adapter.sp.WriteString("open " + adapter.port + " grbl " + strconv.Itoa(adapter.baud))
	if err != nil {
		log.Println("ERROR: open port:", err)
	}
}

func (adapter *SPJSAdapter) State() chan machine.State {
	return adapter.state
}

func (adapter *SPJSAdapter) ReadFrom(r io.Reader) (n int64, err error) {
	scan := bufio.NewScanner(r)
	var wait chan error
	for {
		var j spjs.JSON
		j.Port = adapter.port
		for scan.Scan() {
			n += int64(len(scan.Bytes()))
			j.Data = append(j.Data, spjs.Data{
				Data: strings.TrimSpace(scan.Text()) + "\n",
				ID:   nextID(),
			})
			if len(j.Data) == 100 {
				break
			}
		}
		if len(j.Data) == 0 {
			break
		}
		wait = make(chan error, 1)
		adapter.cmds <- adapterMessage{JSON: j, wait: wait}
	}

	if wait == nil {
		return 0, nil
	}

	// wait for last channel
	return n, <-wait
}
func (adapter *SPJSAdapter) WriteByte(b byte) error {
	_, err := adapter.Write([]byte{b, '\n'})
	return err
}
func (adapter *SPJSAdapter) Write(p []byte) (int, error) {
	n, err := adapter.ReadFrom(bytes.NewBuffer(p))
	return int(n), err
}

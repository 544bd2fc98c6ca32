// Package spjs talks to a serial-port-json-server over its websocket API,
// for controllers attached to another host.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("spjs: closed")

type SPJS struct {
	url string

	// RetryDelay is the wait between connection attempts.
	RetryDelay time.Duration

	mx          sync.RWMutex
	serialPorts []SerialPort

	outgoing chan message
	incoming chan interface{}
	done     chan struct{}
	once     sync.Once
}

type message struct {
	done    chan struct{}
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name         string
	Friendly     string
	SerialNumber string
	IsOpen       bool
	IsPrimary    bool
	Baud         int
	Ver          float64
	USBVID       string
	USBPID       string
}

func NewSPJS(url string) *SPJS {
	sp := &SPJS{
		url:        url,
		RetryDelay: 3 * time.Second,
		outgoing:   make(chan message, 1000),
		incoming:   make(chan interface{}, 1000),
		done:       make(chan struct{}),
	}

	go sp.loop()

	return sp
}

// Messages delivers *DataFrame, *CmdStatus, *SerialPortList and
// *ErrorMessage values as they arrive.
func (sp *SPJS) Messages() chan interface{} {
	return sp.incoming
}

// Ports returns the serial ports from the last port list.
func (sp *SPJS) Ports() []SerialPort {
	sp.mx.RLock()
	defer sp.mx.RUnlock()
	return append([]SerialPort(nil), sp.serialPorts...)
}

// Close disconnects and stops reconnecting.
func (sp *SPJS) Close() error {
	sp.once.Do(func() { close(sp.done) })
	return nil
}

func parseSPJSMessage(data []byte) (val interface{}, err error) {
	var msg map[string]json.RawMessage
	err = json.Unmarshal(data, &msg)
	if err != nil {
		return nil, err
	}
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	switch {
	case check("Error", &ErrorMessage{}):
	case check("SerialPorts", &SerialPortList{}):
	case check("Type", &CmdStatus{}):
	case check("D", &DataFrame{}):
	default:
		return nil, errors.New("unknown message: " + string(data))
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}
func (sp *SPJS) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Println("ERROR: read:", err)
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		val, err := parseSPJSMessage(data)
		if err != nil {
			log.Println("ERROR: parse:", err)
			continue
		}
		if list, ok := val.(*SerialPortList); ok {
			sp.mx.Lock()
			sp.serialPorts = list.SerialPorts
			sp.mx.Unlock()
		}
		select {
		case sp.incoming <- val:
		case <-sp.done:
			return
		}
	}
}
func (sp *SPJS) loop() {
	var nextUp message

reconnect:
	for {
		select {
		case <-sp.done:
			return
		default:
		}
		log.Println("Connecting to", sp.url)
		ws, _, err := websocket.DefaultDialer.Dial(sp.url, nil)
		if err != nil {
			log.Println("ERROR: connect:", err)
			select {
			case <-time.After(sp.RetryDelay):
			case <-sp.done:
				return
			}
			continue
		}
		log.Println("Connected.")
		ch := make(chan struct{})
		go sp.readLoop(ws, ch)
		go sp.WriteString("list") // refresh list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					log.Println("ERROR: send:", err)
					ws.Close()
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-sp.done:
				ws.Close()
				return
			case <-ch:
				ws.Close()
				continue reconnect
			case nextUp = <-sp.outgoing:
			}
		}
	}
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

func (sp *SPJS) send(payload []byte) error {
	ch := make(chan struct{})
	select {
	case sp.outgoing <- message{done: ch, payload: payload}:
	case <-sp.done:
		return ErrClosed
	}
	select {
	case <-ch:
		return nil
	case <-sp.done:
		return ErrClosed
	}
}

// SendJSON queues lines for a port, returning once they are sent.
func (sp *SPJS) SendJSON(v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		// shouldn't happen since we control everything that's sent out
		log.Panicln("ERROR: sendjson (marshal):", err)
	}
	return sp.send(append([]byte("sendjson "), data...))
}

// WriteString sends a raw server command such as "list".
func (sp *SPJS) WriteString(data string) error {
	return sp.send([]byte(data))
}

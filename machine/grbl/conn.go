package grbl

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/mastercactapus/zprobe/machine"
)

// rxBufferSize is the size of Grbl's serial receive buffer. Lines are
// streamed for as long as the unacknowledged ones fit.
const rxBufferSize = 128

// ErrGrblReset will be returned from write methods if a reset is encountered
// before all commands are run.
var ErrGrblReset = errors.New("grbl reset")

// probeLog keeps the probe reports received since the last reset.
type probeLog struct {
	mx      sync.Mutex
	reports []machine.ProbeResult
}

func (l *probeLog) record(line string) {
	res, err := parseProbe(line)
	if errors.Is(err, errNotProbe) {
		return
	}
	if err != nil {
		log.Println("ERROR: parse probe report:", err)
		return
	}
	l.mx.Lock()
	l.reports = append(l.reports, *res)
	l.mx.Unlock()
}

// Probes returns the probe reports since the last reset.
func (l *probeLog) Probes() []machine.ProbeResult {
	l.mx.Lock()
	defer l.mx.Unlock()
	return slices.Clone(l.reports)
}

// ResetProbes discards all probe reports.
func (l *probeLog) ResetProbes() {
	l.mx.Lock()
	l.reports = nil
	l.mx.Unlock()
}

// Conn streams G-code to a Grbl controller with character counting flow
// control and collects the probe reports it sends back.
//
// Acknowledgements are only seen by Read, so something must keep reading
// while writes are in progress.
type Conn struct {
	probeLog

	rw      io.ReadWriter
	scan    *bufio.Scanner
	pending []byte

	acks      chan error
	resets    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	// portMx serializes writes to rw, writeMx whole programs.
	portMx  sync.Mutex
	writeMx sync.Mutex

	// sizes of the lines not yet acknowledged, guarded by writeMx
	inFlight []int
	queued   int
}

var _ machine.ProbeReporter = &Conn{}

// NewConn creates a new Conn using the provided ReadWriter for data.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		rw:     rw,
		scan:   bufio.NewScanner(rw),
		acks:   make(chan error),
		resets: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Close will abort any in-progress writes and close the
// underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// awaitAck waits for the oldest line in flight to be acknowledged.
func (c *Conn) awaitAck() error {
	if c.isClosed() {
		return io.ErrClosedPipe
	}
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	case <-c.resets:
		// everything queued on the controller is gone
		c.inFlight, c.queued = nil, 0
		return ErrGrblReset
	case err := <-c.acks:
		if len(c.inFlight) > 0 {
			c.queued -= c.inFlight[0]
			c.inFlight = c.inFlight[1:]
		}
		return err
	}
}

// drain waits until no lines are in flight and returns the first
// error reported for any of them.
func (c *Conn) drain() error {
	var first error
	for len(c.inFlight) > 0 {
		err := c.awaitAck()
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, ErrGrblReset) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

func (c *Conn) send(line []byte) error {
	for len(c.inFlight) > 0 && c.queued+len(line) > rxBufferSize {
		err := c.awaitAck()
		if err != nil {
			return err
		}
	}
	c.portMx.Lock()
	_, err := c.rw.Write(line)
	c.portMx.Unlock()
	if err != nil {
		return err
	}
	c.inFlight = append(c.inFlight, len(line))
	c.queued += len(line)
	return nil
}

// splitLines keeps the newline of every line, adding one to a final
// unterminated line.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		line := make([]byte, len(data)+1)
		copy(line, data)
		line[len(data)] = '\n'
		return len(data), line, nil
	}
	return 0, nil, nil
}

// ReadFrom returns after all lines have been sent and executed. The
// first error reported by the controller is returned.
func (c *Conn) ReadFrom(r io.Reader) (n int64, err error) {
	c.writeMx.Lock()
	defer c.writeMx.Unlock()
	if c.isClosed() {
		return 0, io.ErrClosedPipe
	}
	if len(c.inFlight) == 0 {
		// a reset with nothing queued, like the startup banner, aborts nothing
		select {
		case <-c.resets:
		default:
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Split(splitLines)
	for scanner.Scan() {
		err = c.send(scanner.Bytes())
		if err != nil {
			return n, err
		}
		n += int64(len(scanner.Bytes()))
	}
	if err = scanner.Err(); err != nil {
		return n, err
	}

	return n, c.drain()
}

// Write will return after all lines have been sent and executed.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.ReadFrom(bytes.NewReader(p))
	return int(n), err
}

// WriteByte will write directly to the serial device without
// accounting for buffering.
//
// Use for realtime commands like `?`.
func (c *Conn) WriteByte(b byte) error {
	if c.isClosed() {
		return io.ErrClosedPipe
	}
	c.portMx.Lock()
	defer c.portMx.Unlock()
	_, err := c.rw.Write([]byte{b})
	return err
}

// handle acts on a line from the controller before it is returned by Read.
// Probe reports arrive ahead of the acknowledgement of their move.
func (c *Conn) handle(line string) error {
	var ack error
	switch {
	case line == "ok":
	case strings.HasPrefix(line, "error:"):
		ack = errors.New(line)
	case strings.HasPrefix(line, "Grbl"):
		c.ResetProbes()
		select {
		case c.resets <- struct{}{}:
		default:
		}
		return nil
	case strings.HasPrefix(line, "[PRB:"):
		c.record(line)
		return nil
	default:
		return nil
	}

	select {
	case c.acks <- ack:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	}
}

// Read will read the next line from the device.
func (c *Conn) Read(p []byte) (n int, err error) {
	if c.isClosed() {
		return 0, io.ErrClosedPipe
	}

	if c.pending != nil {
		if len(p) < len(c.pending) {
			return 0, io.ErrShortBuffer
		}
		n = copy(p, c.pending)
		c.pending = nil
		return n, nil
	}
	if !c.scan.Scan() {
		if err := c.scan.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	data := c.scan.Bytes()
	err = c.handle(string(bytes.TrimSpace(data)))
	if err != nil {
		return 0, err
	}

	if len(p) < len(data) {
		c.pending = bytes.Clone(data)
		return 0, io.ErrShortBuffer
	}
	return copy(p, data), nil
}

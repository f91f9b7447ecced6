//go:build unix

package tcp

import (
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	M "github.com/sagernet/sing-reactor/common/metadata"
	"github.com/sagernet/sing-reactor/common/socket"

	"github.com/eapache/queue"
)

var ErrEmptyBuffer = E.New("tcp: empty buffer")

// Conn is one connected stream socket. Reads never block; Send blocks
// until every byte has been handed to the kernel.
type Conn struct {
	handle      *socket.Handle
	peer        M.Socksaddr
	input       *socket.InputStream
	output      *socket.OutputStream
	sendTimeout time.Duration
	pending     []byte
	queue       *queue.Queue
	sent        uint64
	received    uint64
	recvTimeout time.Duration
	lastRecv    time.Time
}

// NewConn takes ownership of fd.
func NewConn(fd int, peer M.Socksaddr) *Conn {
	return &Conn{
		handle:   socket.NewHandle(fd),
		peer:     peer,
		input:    socket.NewInputStream(fd),
		queue:    queue.New(),
		lastRecv: time.Now(),
	}
}

func (c *Conn) FD() int {
	return c.handle.FD()
}

func (c *Conn) Peer() M.Socksaddr {
	return c.peer
}

func (c *Conn) SetNonblock(nonblocking bool) error {
	if !c.handle.IsValid() {
		return ErrClosed
	}
	return socket.SetNonblock(c.handle.FD(), nonblocking)
}

// SetSendTimeout bounds each wait for writability inside Send.
func (c *Conn) SetSendTimeout(timeout time.Duration) {
	c.sendTimeout = timeout
	if c.output != nil {
		c.output.SetTimeout(timeout)
	}
}

// Send writes all of p. A nil error means every byte was written.
func (c *Conn) Send(p []byte) error {
	if len(p) == 0 {
		return ErrEmptyBuffer
	}
	if !c.handle.IsValid() {
		return ErrClosed
	}
	if c.output == nil {
		c.output = socket.NewOutputStream(c.handle.FD())
		c.output.SetTimeout(c.sendTimeout)
	}
	n, err := c.output.WriteFully(p)
	c.sent += uint64(n)
	if err != nil {
		return E.Cause(err, "send to ", c.peer)
	}
	return nil
}

// Read reads whatever is available. With a non-blocking descriptor an empty
// socket yields a would-block error, see socket.IsWouldBlock.
func (c *Conn) Read(p []byte) (int, error) {
	if !c.handle.IsValid() {
		return 0, ErrClosed
	}
	n, err := c.input.Read(p)
	if n > 0 {
		c.received += uint64(n)
		c.lastRecv = time.Now()
	}
	return n, err
}

// Queue appends a copy of p to the outgoing queue, written by Flush.
func (c *Conn) Queue(p []byte) {
	if len(p) == 0 {
		return
	}
	c.queue.Add(append([]byte(nil), p...))
}

// Queued returns the number of bytes waiting to be flushed.
func (c *Conn) Queued() int {
	size := len(c.pending)
	for i := 0; i < c.queue.Length(); i++ {
		size += len(c.queue.Get(i).([]byte))
	}
	return size
}

// Flush writes queued data until the queue drains or the socket would
// block. It is meant to be called on send readiness.
func (c *Conn) Flush() (int, error) {
	if !c.handle.IsValid() {
		return 0, ErrClosed
	}
	var flushed int
	for {
		if len(c.pending) == 0 {
			if c.queue.Length() == 0 {
				return flushed, nil
			}
			c.pending = c.queue.Remove().([]byte)
		}
		n, err := socket.Write(c.handle.FD(), c.pending)
		flushed += n
		c.sent += uint64(n)
		c.pending = c.pending[n:]
		if err != nil {
			if socket.IsTemporary(err) {
				return flushed, nil
			}
			return flushed, E.Cause(err, "flush to ", c.peer)
		}
	}
}

func (c *Conn) Sent() uint64 {
	return c.sent
}

func (c *Conn) Received() uint64 {
	return c.received
}

// SetRecvTimeout sets the idle window checked by CheckRecvTimeout; zero
// disables it.
func (c *Conn) SetRecvTimeout(timeout time.Duration) {
	c.recvTimeout = timeout
	c.lastRecv = time.Now()
}

func (c *Conn) LastRecv() time.Time {
	return c.lastRecv
}

// CheckRecvTimeout reports whether nothing has been received for longer
// than the receive timeout.
func (c *Conn) CheckRecvTimeout(now time.Time) bool {
	return c.recvTimeout > 0 && now.Sub(c.lastRecv) > c.recvTimeout
}

func (c *Conn) Close() error {
	c.pending = nil
	for c.queue.Length() > 0 {
		c.queue.Remove()
	}
	return c.handle.Close()
}

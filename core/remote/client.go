// Package remote is a pipelined client for the group transfer protocol.
// Requests are answered strictly in the order they were written, so one
// goroutine writes requests and a second one reads responses, matching
// each to the oldest unanswered request.
package remote

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmyte/jagcache/core/codec"
	"github.com/bmyte/jagcache/core/model"
	"github.com/bmyte/jagcache/lib/logger"
	"github.com/bmyte/jagcache/rpc/protocol"
	"github.com/pkg/errors"
)

// MaxInFlight is the number of requests that may be written before the
// sender waits for responses.
const MaxInFlight = 19

// maxResponseSize guards the allocation driven by the length field.
const maxResponseSize = protocol.ResponseHeaderSize + 1<<24 + 4

var log, _ = logger.New("remote")

var (
	ErrProtocol         = errors.New("remote: protocol error")
	ErrRevisionMismatch = errors.Wrap(ErrProtocol, "revision mismatch")
	ErrClosed           = errors.New("remote: client closed")
)

type Client struct {
	conn net.Conn
	r    *bufio.Reader
	opts options

	outbound *queue
	inflight chan *request

	// dead is closed once err is set; both loops and every Future
	// watch it.
	dead     chan struct{}
	deadOnce sync.Once
	err      error

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// Dial connects to addr, performs the revision handshake and starts the
// sender and receiver loops.
func Dial(ctx context.Context, addr string, revision uint32, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := net.Dialer{Timeout: o.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	if err := handshake(conn, revision, o.readTimeout); err != nil {
		conn.Close()
		return nil, err
	}

	log.Infow("connected", "addr", addr, "revision", revision)
	c := newClient(conn, o)
	c.start()
	return c, nil
}

func handshake(conn net.Conn, revision uint32, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return errors.Wrap(err, "set handshake deadline")
		}
	}

	hello, _ := protocol.Handshake{Revision: revision}.MarshalBinary()
	if _, err := conn.Write(hello); err != nil {
		return errors.Wrapf(ErrProtocol, "write handshake: %v", err)
	}

	var status [1]byte
	if _, err := io.ReadFull(conn, status[:]); err != nil {
		return errors.Wrapf(ErrProtocol, "read handshake status: %v", err)
	}
	if status[0] != protocol.StatusOK {
		return errors.Wrapf(ErrRevisionMismatch, "revision %d rejected with status %d", revision, status[0])
	}

	if _, err := conn.Write(protocol.SessionInit[:]); err != nil {
		return errors.Wrapf(ErrProtocol, "write session init: %v", err)
	}

	return conn.SetDeadline(time.Time{})
}

func newClient(conn net.Conn, o options) *Client {
	return &Client{
		conn:     conn,
		r:        bufio.NewReaderSize(conn, protocol.WindowSize*8),
		opts:     o,
		outbound: newQueue(),
		inflight: make(chan *request, MaxInFlight),
		dead:     make(chan struct{}),
	}
}

func (c *Client) start() {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		if err := c.send(); err != nil {
			log.Errorw("sender failed", "err", err)
			c.fail(err)
		}
	}()
	go func() {
		defer c.wg.Done()
		if err := c.receive(); err != nil {
			log.Errorw("receiver failed", "err", err)
			c.fail(err)
		}
	}()
}

// fail records the first terminal error, wakes every waiter and closes
// the connection so a blocked loop returns.
func (c *Client) fail(err error) {
	c.deadOnce.Do(func() {
		c.err = err
		close(c.dead)
		c.conn.Close()
	})
}

// Request queues a request for (archive, group) without blocking.
func (c *Client) Request(archive, group int) *Future {
	req := newRequest(archive, group)
	f := &Future{c: c, req: req}

	switch {
	case archive < 0 || archive >= model.MaxArchives || group < 0 || group > 0xffff:
		req.done <- result{err: errors.Errorf("remote: group (%d, %d) out of range", archive, group)}
	case c.closing.Load():
		req.done <- result{err: ErrClosed}
	default:
		c.outbound.push(req)
	}
	return f
}

// Fetch requests (archive, group) and waits for the container bytes,
// which start at the compressor tag.
func (c *Client) Fetch(ctx context.Context, archive, group int) ([]byte, error) {
	return c.Request(archive, group).Wait(ctx)
}

// Close lets every request queued so far complete, stops both loops and
// closes the connection. It returns the error that failed the client,
// if any.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.outbound.push(shutdownSentinel())
		c.wg.Wait()
		c.fail(ErrClosed)
		if !errors.Is(c.err, ErrClosed) {
			c.closeErr = c.err
		}
		log.Debugw("closed", "addr", c.conn.RemoteAddr().String())
	})
	return c.closeErr
}

func (c *Client) send() error {
	frame := make([]byte, protocol.RequestSize)
	for {
		req, ok := c.outbound.pop(c.dead)
		if !ok {
			return nil
		}

		if !req.isShutdownSentinel() {
			req.frame().Put(frame)
			if c.opts.readTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.readTimeout))
			}
			if _, err := c.conn.Write(frame); err != nil {
				return errors.Wrapf(ErrProtocol, "write request (%d, %d): %v", req.archive, req.group, err)
			}
			requestsSent.Inc()
			inFlight.Inc()
		}

		select {
		case c.inflight <- req:
		case <-c.dead:
			return nil
		}
		if req.isShutdownSentinel() {
			return nil
		}
	}
}

func (c *Client) receive() error {
	header := make([]byte, protocol.ResponseHeaderSize)
	for {
		var req *request
		select {
		case req = <-c.inflight:
		case <-c.dead:
			return nil
		}
		if req.isShutdownSentinel() {
			return nil
		}
		inFlight.Dec()

		data, err := c.readResponse(req, header)
		if err != nil {
			req.done <- result{err: err}
			return err
		}
		responsesReceived.Inc()
		bytesReceived.Add(float64(len(data)))
		req.done <- result{data: data}
	}
}

func (c *Client) readResponse(req *request, header []byte) ([]byte, error) {
	if c.opts.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.readTimeout))
	}

	if _, err := io.ReadFull(c.r, header); err != nil {
		return nil, errors.Wrapf(ErrProtocol, "read response header for (%d, %d): %v", req.archive, req.group, err)
	}

	h := protocol.ParseResponseHeader(header)
	if int(h.Archive) != req.archive || int(h.Group) != req.group {
		return nil, errors.Wrapf(ErrProtocol, "response for (%d, %d) while expecting (%d, %d)",
			h.Archive, h.Group, req.archive, req.group)
	}

	compressor, err := codec.ParseCompressor(h.Compressor)
	if err != nil {
		return nil, errors.Wrapf(ErrProtocol, "response for (%d, %d): %v", req.archive, req.group, err)
	}

	size := protocol.ResponseHeaderSize + int64(h.Length) + int64(compressor.HeaderSize())
	if size > maxResponseSize {
		return nil, errors.Wrapf(ErrProtocol, "response for (%d, %d) declares %d bytes", req.archive, req.group, size)
	}

	buf := make([]byte, size)
	copy(buf, header)
	if err := c.readWindows(buf); err != nil {
		return nil, errors.Wrapf(err, "read response body for (%d, %d)", req.archive, req.group)
	}

	// Drop archive and group, keep the container from its tag byte.
	return buf[3:], nil
}

// readWindows fills buf past the already-read header. The stream is cut
// into 512-byte windows and every window after the first starts with a
// delimiter byte that is not part of the payload.
func (c *Client) readWindows(buf []byte) error {
	size := len(buf)
	first := min(size, protocol.WindowSize)
	if _, err := io.ReadFull(c.r, buf[protocol.ResponseHeaderSize:first]); err != nil {
		return errors.Wrapf(ErrProtocol, "%v", err)
	}

	for pos := first; pos < size; {
		delim, err := c.r.ReadByte()
		if err != nil {
			return errors.Wrapf(ErrProtocol, "%v", err)
		}
		if delim != protocol.WindowDelimiter {
			return errors.Wrapf(ErrProtocol, "window delimiter 0x%02x at offset %d", delim, pos)
		}

		n := min(size-pos, protocol.WindowSize-1)
		if _, err := io.ReadFull(c.r, buf[pos:pos+n]); err != nil {
			return errors.Wrapf(ErrProtocol, "%v", err)
		}
		pos += n
	}
	return nil
}

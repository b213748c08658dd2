// SPDX-License-Identifier: MPL-2.0
//
// wsconn adapts binary WebSocket connections into the duplex byte-frame
// queues the rest of this module expects (spec.md §6: "the Noise core is
// transport-agnostic; a WebSocket-framed binary connection is the
// reference outer transport"). The read/write pump split is grounded on
// the teacher's internal/transport/channels.go ref-counted queue idiom;
// the gorilla/websocket upgrade/dial shape is grounded on
// leebo-zerogo's internal/controller/ws.go.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
)

const (
	// sendQueueSize bounds how many frames each direction's queue may
	// buffer; an outbound frame beyond it makes WriteFrame block. It mirrors
	// the teacher's QueueOutboundSize-style queue depth constants.
	sendQueueSize = 128

	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// FrameConn is the duplex binary-frame transport the rest of this module
// programs against: a WebSocket connection, a loopback pipe for tests, or
// any other carrier that preserves frame boundaries. ReadFrame blocks until
// a frame arrives, ctx is canceled, or the connection closes; it reports
// ErrFrameTooLarge if the next frame does not fit in buf. WriteFrame either
// accepts the whole frame or returns an error; *Conn queues the frame and
// reports a later send failure only through Close.
type FrameConn interface {
	ReadFrame(ctx context.Context, buf []byte) (int, error)
	WriteFrame(frame []byte) (int, error)
	Close() error
}

// ErrFrameTooLarge is returned by Conn.ReadFrame when the next queued frame
// does not fit in the caller-supplied buffer.
var ErrFrameTooLarge = errors.New("wsconn: frame too large for buffer")

// Conn is a binary-framed WebSocket connection with independent read and
// write pumps, each running on its own goroutine so that a slow or silent
// peer in one direction cannot stall the other. *Conn implements FrameConn.
type Conn struct {
	ws  *websocket.Conn
	log *slog.Logger

	outbound chan []byte
	inbound  chan []byte

	closeOnce    sync.Once
	teardownOnce sync.Once
	closed       chan struct{}
	closeErr     error
	closeErrMu   sync.Mutex
}

// Dial opens a client-side WebSocket connection to url and returns it as a
// FrameConn. It logs through slog.Default with a "wsconn" component tag;
// callers that want a differently configured logger can reassign
// slog.SetDefault before dialing.
func Dial(ctx context.Context, url string) (FrameConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: writeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: dial: %w", err)
	}
	return newConn(ws), nil
}

// Accept upgrades an inbound HTTP request to a server-side WebSocket
// connection and returns it as a FrameConn.
func Accept(w http.ResponseWriter, r *http.Request) (FrameConn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: upgrade: %w", err)
	}
	return newConn(ws), nil
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:       ws,
		log:      slog.Default().With("component", "wsconn", "remote", ws.RemoteAddr().String()),
		outbound: make(chan []byte, sendQueueSize),
		inbound:  make(chan []byte, sendQueueSize),
		closed:   make(chan struct{}),
	}
	ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	go c.readPump()
	go c.writePump()
	return c
}

// WriteFrame enqueues frame for transmission and reports its length once
// queued. It returns an error if the connection has already closed.
func (c *Conn) WriteFrame(frame []byte) (int, error) {
	select {
	case c.outbound <- frame:
		return len(frame), nil
	case <-c.closed:
		return 0, fmt.Errorf("wsconn: connection closed: %w", c.err())
	}
}

func (c *Conn) err() error {
	c.closeErrMu.Lock()
	defer c.closeErrMu.Unlock()
	return c.closeErr
}

// ReadFrame blocks until the next frame arrives, copies it into buf, and
// returns its length, or ErrFrameTooLarge if the frame doesn't fit. Callers
// should size buf generously; an oversized frame is dropped, not buffered.
func (c *Conn) ReadFrame(ctx context.Context, buf []byte) (int, error) {
	select {
	case frame, ok := <-c.inbound:
		if !ok {
			return 0, fmt.Errorf("wsconn: connection closed: %w", c.err())
		}
		if len(frame) > len(buf) {
			return 0, ErrFrameTooLarge
		}
		return copy(buf, frame), nil
	case <-c.closed:
		return 0, fmt.Errorf("wsconn: connection closed: %w", c.err())
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Done returns a channel closed once the first of the two pumps has
// stopped and the connection has been torn down.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Close shuts the connection down, waits until it is torn down, and
// returns the pump errors recorded by then, joined with go-multierror. An
// error the other pump records after the teardown is not included.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.ws.Close()
	})
	<-c.closed
	c.closeErrMu.Lock()
	defer c.closeErrMu.Unlock()
	return c.closeErr
}

func (c *Conn) readPump() {
	var errs *multierror.Error
	defer func() {
		c.recordErr(errs.ErrorOrNil())
		close(c.inbound)
		c.teardown()
	}()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", "err", err)
				errs = multierror.Append(errs, fmt.Errorf("read: %w", err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		select {
		case c.inbound <- data:
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	var errs *multierror.Error
	defer func() {
		c.recordErr(errs.ErrorOrNil())
		c.teardown()
	}()

	for {
		select {
		case frame, ok := <-c.outbound:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("write: %w", err))
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("ping: %w", err))
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) recordErr(err error) {
	if err == nil {
		return
	}
	c.closeErrMu.Lock()
	defer c.closeErrMu.Unlock()
	if c.closeErr == nil {
		c.closeErr = err
	} else {
		c.closeErr = multierror.Append(nil, c.closeErr, err).ErrorOrNil()
	}
}

func (c *Conn) teardown() {
	c.closeOnce.Do(func() {
		c.ws.Close()
	})
	c.teardownOnce.Do(func() {
		close(c.closed)
	})
}

package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/codefionn/discussd/internal/command"
	"github.com/codefionn/discussd/internal/logger"
)

// SessionRemover drops the identity of a peer when its connection ends.
type SessionRemover interface {
	Delete(peerID string) (string, bool)
}

// ClientOptions tune a Client.
type ClientOptions struct {
	// IdleTimeout closes a connection that sends nothing for this long.
	// Zero disables it.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	HistorySize  int
}

// Client is one live peer connection.
type Client struct {
	// ID is a unique trace id for log correlation.
	ID string
	// PeerID is the transport address of the peer.
	PeerID string

	conn       LineConn
	hub        *Hub
	sessions   SessionRemover
	dispatcher *command.Dispatcher
	history    *command.History
	opts       ClientOptions
	log        *logger.Logger

	send    chan string
	writeMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewClient creates a client for conn.
func NewClient(conn LineConn, hub *Hub, sessions SessionRemover, dispatcher *command.Dispatcher, opts ClientOptions) *Client {
	id := ulid.Make().String()
	return &Client{
		ID:         id,
		PeerID:     conn.RemoteAddr(),
		conn:       conn,
		hub:        hub,
		sessions:   sessions,
		dispatcher: dispatcher,
		history:    command.NewHistory(opts.HistorySize),
		opts:       opts,
		log:        logger.Global().WithPrefix("conn " + id),
		send:       make(chan string, opts.SendBuffer),
		stopChan:   make(chan struct{}),
	}
}

// Serve registers the client and runs it until the connection ends or ctx
// is cancelled.
func (c *Client) Serve(ctx context.Context) {
	c.hub.Register(c)
	c.log.Info("peer %s connected", c.PeerID)

	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.stopChan:
		}
	}()

	c.readLoop(ctx)
}

// readLoop handles one request at a time: the next line is not read until
// the response to the previous one is written.
func (c *Client) readLoop(ctx context.Context) {
	defer c.signOut()
	defer c.Close()

	for {
		if c.opts.IdleTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout)); err != nil {
				c.log.Error("failed to set read deadline: %v", err)
				return
			}
		}

		line, err := c.conn.ReadLine()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.log.Debug("<- %s", line)

		out, ok := c.dispatcher.HandleLine(ctx, line, c.PeerID, c.history)
		if !ok {
			continue
		}
		if err := c.write(out); err != nil {
			c.log.Warn("failed to write response: %v", err)
			return
		}
	}
}

func (c *Client) logReadError(err error) {
	var closeErr *websocket.CloseError
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.log.Info("peer %s disconnected", c.PeerID)
	case errors.As(err, &closeErr):
		c.log.Info("peer %s closed websocket (%d)", c.PeerID, closeErr.Code)
	case errors.Is(err, ErrLineTooLong):
		c.log.Warn("peer %s sent an oversized line, closing", c.PeerID)
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		c.log.Info("peer %s idle, closing", c.PeerID)
	default:
		c.log.Error("read from %s failed: %v", c.PeerID, err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// writePump drains queued pushes.
func (c *Client) writePump() {
	for {
		select {
		case <-c.stopChan:
			return
		case line := <-c.send:
			if err := c.write(line); err != nil {
				c.log.Warn("failed to write push: %v", err)
				c.Close()
				return
			}
		}
	}
}

func (c *Client) write(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteLine(line)
}

// Push queues an unsolicited line. It never blocks; when the queue is full
// the line is dropped.
func (c *Client) Push(line string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- line:
		return true
	default:
		c.log.Warn("send buffer full for %s, push dropped", c.PeerID)
		return false
	}
}

// signOut runs after the read loop has stopped, so no command of this peer
// can set its identity again afterwards.
func (c *Client) signOut() {
	if user, ok := c.sessions.Delete(c.PeerID); ok {
		c.log.Info("signed out %s", user)
	}
}

// Close ends the connection. The hub entry is removed before the transport
// is closed; the identity of the peer is removed once the read loop exits.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stopChan)

		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.log.Debug("close: %v", err)
		}
		c.log.Info("peer %s closed", c.PeerID)
	})
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.stopChan
}

// Package client speaks the discussd line protocol over TCP.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/discussd/internal/consts"
	"github.com/codefionn/discussd/internal/discussion"
	"github.com/codefionn/discussd/internal/protocol"
)

// ErrClosed is returned by Do once the connection is gone.
var ErrClosed = errors.New("connection closed")

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	// StateConnected indicates the client can send requests
	StateConnected ConnectionState = iota
	// StateClosed indicates the connection has ended
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ServerError is a failure line sent in place of a response.
type ServerError struct {
	RequestID string
	Action    string
	Message   string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Reply is a successful response.
type Reply struct {
	RequestID string
	// Body is everything after "request_id|", empty for a bare ack.
	Body string
}

// Fields splits Body on every delimiter.
func (r Reply) Fields() []string {
	if r.Body == "" {
		return nil
	}
	return strings.Split(r.Body, "|")
}

// Config holds client configuration
type Config struct {
	// ConnectTimeout is the timeout for the initial dial
	ConnectTimeout time.Duration
	// RequestTimeout bounds Do when the context has no deadline
	RequestTimeout time.Duration
	// WriteTimeout is the timeout for writing a request
	WriteTimeout time.Duration
	// NotificationBuffer is the number of undelivered pushes kept before
	// new ones are dropped
	NotificationBuffer int
	// MaxLineBytes bounds a received line
	MaxLineBytes int
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout:     consts.Timeout10Seconds,
		RequestTimeout:     30 * time.Second,
		WriteTimeout:       consts.Timeout10Seconds,
		NotificationBuffer: 64,
		MaxLineBytes:       consts.DefaultMaxLineBytes,
	}
}

// Client is one connection. Requests are serialized: at most one is in
// flight.
type Client struct {
	config *Config
	conn   net.Conn
	state  atomic.Int32

	reqMu   sync.Mutex
	writeMu sync.Mutex
	replies chan string

	notifications chan string

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

// Dial connects to addr with the default configuration.
func Dial(ctx context.Context, addr string) (*Client, error) {
	return DialWithConfig(ctx, addr, DefaultConfig())
}

// DialWithConfig connects to addr.
func DialWithConfig(ctx context.Context, addr string, config *Config) (*Client, error) {
	dialer := net.Dialer{Timeout: config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return New(conn, config), nil
}

// New wraps an established connection.
func New(conn net.Conn, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	c := &Client{
		config:        config,
		conn:          conn,
		replies:       make(chan string, 1),
		notifications: make(chan string, config.NotificationBuffer),
		done:          make(chan struct{}),
	}
	c.state.Store(int32(StateConnected))
	go c.readLoop()
	return c
}

// State returns the connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// LocalAddr returns the local endpoint, which the server sees as the peer id.
func (c *Client) LocalAddr() string {
	return c.conn.LocalAddr().String()
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, min(4096, c.config.MaxLineBytes)), c.config.MaxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()
		if id, ok := strings.CutPrefix(line, protocol.NotificationAction+"|"); ok {
			select {
			case c.notifications <- id:
			default:
			}
			continue
		}
		select {
		case c.replies <- line:
		default:
			// unsolicited line with no request waiting
		}
	}

	close(c.notifications)
	err := scanner.Err()
	if err == nil {
		err = ErrClosed
	}
	c.shutdown(err)
}

// Notifications delivers the discussion id of every DISCUSSION_UPDATED push.
// The channel is closed when the connection ends.
func (c *Client) Notifications() <-chan string {
	return c.notifications
}

// Do sends action with params under a fresh request id and waits for the
// response. A failure line is returned as *ServerError.
func (c *Client) Do(ctx context.Context, action string, params ...string) (Reply, error) {
	id, err := discussion.NewID()
	if err != nil {
		return Reply{}, fmt.Errorf("generate request id: %w", err)
	}
	return c.DoWithID(ctx, id, action, params...)
}

// DoWithID is Do with a caller-chosen request id.
func (c *Client) DoWithID(ctx context.Context, requestID, action string, params ...string) (Reply, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if _, ok := ctx.Deadline(); !ok && c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	// drop a stale reply left by an abandoned request
	select {
	case <-c.replies:
	default:
	}

	line := strings.Join(append([]string{requestID, action}, params...), "|") + "\n"
	if err := c.writeLine(line); err != nil {
		return Reply{}, err
	}

	select {
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-c.done:
		return Reply{}, c.Err()
	case resp := <-c.replies:
		if resp == requestID {
			return Reply{RequestID: requestID}, nil
		}
		if body, ok := strings.CutPrefix(resp, requestID+"|"); ok {
			return Reply{RequestID: requestID, Body: body}, nil
		}
		return Reply{}, &ServerError{RequestID: requestID, Action: action, Message: resp}
	}
}

// Send writes a raw line and returns the next non-push line. It is meant
// for interactive use where the caller builds the request itself.
func (c *Client) Send(ctx context.Context, line string) (string, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	select {
	case <-c.replies:
	default:
	}
	if err := c.writeLine(strings.TrimRight(line, "\r\n") + "\n"); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", c.Err()
	case resp := <-c.replies:
		return resp, nil
	}
}

func (c *Client) writeLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return c.Err()
	default:
	}
	if c.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		c.state.Store(int32(StateClosed))
		close(c.done)
		c.conn.Close()
	})
}

// Close closes the connection.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

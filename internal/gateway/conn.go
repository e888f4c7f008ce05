package gateway

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrLineTooLong is returned when a peer sends a line over the size limit.
var ErrLineTooLong = errors.New("line too long")

// LineConn is a bidirectional line transport.
type LineConn interface {
	// ReadLine returns the next line without its terminator.
	ReadLine() (string, error)
	// WriteLine writes one newline-terminated line.
	WriteLine(line string) error
	RemoteAddr() string
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type tcpConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// NewTCPConn wraps conn. Lines longer than maxLine bytes fail with
// ErrLineTooLong.
func NewTCPConn(conn net.Conn, maxLine int) LineConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(4096, maxLine)), maxLine)
	return &tcpConn{conn: conn, scanner: scanner}
}

func (c *tcpConn) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		err := c.scanner.Err()
		if errors.Is(err, bufio.ErrTooLong) {
			return "", ErrLineTooLong
		}
		if err == nil {
			return "", net.ErrClosed
		}
		return "", err
	}
	return c.scanner.Text(), nil
}

func (c *tcpConn) WriteLine(line string) error {
	_, err := c.conn.Write([]byte(line))
	return err
}

func (c *tcpConn) RemoteAddr() string                 { return c.conn.RemoteAddr().String() }
func (c *tcpConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *tcpConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *tcpConn) Close() error                       { return c.conn.Close() }

type wsConn struct {
	conn   *websocket.Conn
	remote string
}

// NewWebSocketConn wraps a WebSocket connection. Each text frame carries one
// line without its terminator.
func NewWebSocketConn(conn *websocket.Conn, remote string, maxLine int) LineConn {
	conn.SetReadLimit(int64(maxLine))
	return &wsConn{conn: conn, remote: remote}
}

func (c *wsConn) ReadLine() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", ErrLineTooLong
			}
			return "", err
		}
		if kind == websocket.TextMessage {
			return strings.TrimRight(string(data), "\r\n"), nil
		}
	}
}

func (c *wsConn) WriteLine(line string) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(strings.TrimSuffix(line, "\n")))
}

func (c *wsConn) RemoteAddr() string                 { return c.remote }
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

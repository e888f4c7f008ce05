package client

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers each request line with respond(line).
func fakeServer(t *testing.T, conn net.Conn, respond func(line string) []string) {
	t.Helper()
	go func() {
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			for _, out := range respond(strings.TrimRight(line, "\n")) {
				if _, err := conn.Write([]byte(out + "\n")); err != nil {
					return
				}
			}
		}
	}()
}

func newPipeClient(t *testing.T, respond func(line string) []string) *Client {
	t.Helper()
	local, remote := net.Pipe()
	fakeServer(t, remote, respond)
	c := New(local, nil)
	t.Cleanup(func() {
		c.Close()
		remote.Close()
	})
	return c
}

func requestID(line string) string {
	id, _, _ := strings.Cut(line, "|")
	return id
}

func TestDoParsesAckAndBody(t *testing.T) {
	c := newPipeClient(t, func(line string) []string {
		if strings.HasSuffix(line, "|WHOAMI") {
			return []string{requestID(line) + "|janedoe"}
		}
		return []string{requestID(line)}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := c.Do(ctx, "SIGN_IN", "janedoe")
	require.NoError(t, err)
	assert.Regexp(t, `^[a-z]{7}$`, reply.RequestID)
	assert.Empty(t, reply.Body)
	assert.Nil(t, reply.Fields())

	reply, err = c.Do(ctx, "WHOAMI")
	require.NoError(t, err)
	assert.Equal(t, "janedoe", reply.Body)
	assert.Equal(t, []string{"janedoe"}, reply.Fields())
}

func TestDoReturnsServerError(t *testing.T) {
	c := newPipeClient(t, func(string) []string {
		return []string{"Unknown action: DANCE"}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Do(ctx, "DANCE")
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "Unknown action: DANCE", serverErr.Message)
	assert.Equal(t, "DANCE", serverErr.Action)
}

func TestNotificationsAreSeparatedFromReplies(t *testing.T) {
	c := newPipeClient(t, func(line string) []string {
		return []string{"DISCUSSION_UPDATED|qwertyu", requestID(line)}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.DoWithID(ctx, "abcdefg", "WHOAMI")
	require.NoError(t, err)

	select {
	case id := <-c.Notifications():
		assert.Equal(t, "qwertyu", id)
	case <-ctx.Done():
		t.Fatal("no notification")
	}
}

func TestClosedConnection(t *testing.T) {
	local, remote := net.Pipe()
	c := New(local, nil)
	assert.Equal(t, StateConnected, c.State())

	remote.Close()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not notice the closed connection")
	}
	assert.Equal(t, StateClosed, c.State())

	_, open := <-c.Notifications()
	assert.False(t, open)

	_, err := c.Do(context.Background(), "WHOAMI")
	assert.Error(t, err)
}

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/discussd/internal/client"
	"github.com/codefionn/discussd/internal/command"
	"github.com/codefionn/discussd/internal/relay"
	"github.com/codefionn/discussd/internal/session"
	"github.com/codefionn/discussd/internal/storage/memory"
)

type testGateway struct {
	srv      *Server
	sessions *session.Directory
	store    *memory.Store
	addr     string
	ctx      context.Context
}

func startGateway(t *testing.T, opts Options) *testGateway {
	t.Helper()

	sessions := session.NewDirectory()
	store := memory.New()
	disp := command.NewDispatcher(nil, command.Deps{Sessions: sessions, Discussions: store})

	opts.Addr = "127.0.0.1:0"
	srv := NewServer(opts, sessions, disp)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		srv.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		store.Close()
	})

	return &testGateway{srv: srv, sessions: sessions, store: store, addr: srv.Addr().String(), ctx: ctx}
}

func (g *testGateway) dial(t *testing.T) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, g.addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func do(t *testing.T, c *client.Client, action string, params ...string) client.Reply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := c.Do(ctx, action, params...)
	require.NoError(t, err)
	return reply
}

func TestSignInAndWhoAmI(t *testing.T) {
	g := startGateway(t, Options{})
	c := g.dial(t)

	do(t, c, "SIGN_IN", "janedoe")
	assert.Equal(t, "janedoe", do(t, c, "WHOAMI").Body)

	peer, ok := g.sessions.GetPeerID("janedoe")
	require.True(t, ok)
	assert.Equal(t, c.LocalAddr(), peer)

	do(t, c, "SIGN_OUT")
	assert.Empty(t, do(t, c, "WHOAMI").Body)
}

func TestErrorsKeepConnectionOpen(t *testing.T) {
	g := startGateway(t, Options{})
	c := g.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Send(ctx, "abc|SIGN_IN|janedoe")
	require.NoError(t, err)
	assert.Equal(t, "Invalid request_id. Must be 7 lowercase letters (a-z)", resp)

	_, err = c.Do(ctx, "DANCE")
	var serverErr *client.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "Unknown action: DANCE", serverErr.Message)

	_, err = c.Do(ctx, "CREATE_DISCUSSION", "ref.123", "hello")
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "SIGN_IN required", serverErr.Message)

	do(t, c, "SIGN_IN", "janedoe")
}

func TestResponsesFollowRequestOrder(t *testing.T) {
	g := startGateway(t, Options{})

	conn, err := net.Dial("tcp", g.addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	var batch strings.Builder
	ids := []string{"aaaaaaa", "bbbbbbb", "ccccccc", "ddddddd", "eeeeeee"}
	batch.WriteString("aaaaaaa|SIGN_IN|janedoe\n")
	for _, id := range ids[1:] {
		batch.WriteString(id + "|WHOAMI\n")
	}
	_, err = conn.Write([]byte(batch.String()))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaa\n", line)
	for _, id := range ids[1:] {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, id+"|janedoe\n", line)
	}
}

func TestReplyNotifiesOtherParticipant(t *testing.T) {
	g := startGateway(t, Options{})

	stream, err := g.store.Watch(g.ctx)
	require.NoError(t, err)
	go relay.New(stream, g.sessions, g.srv.Hub()).Run(g.ctx)

	alice := g.dial(t)
	bob := g.dial(t)
	carol := g.dial(t)
	do(t, alice, "SIGN_IN", "alice")
	do(t, bob, "SIGN_IN", "bob")
	do(t, carol, "SIGN_IN", "carol")

	id := do(t, alice, "CREATE_DISCUSSION", "ref.123", "test comment").Body
	require.Regexp(t, `^[a-z]{7}$`, id)
	do(t, bob, "CREATE_REPLY", id, "test reply, yooo")

	select {
	case got := <-alice.Notifications():
		assert.Equal(t, id, got)
	case <-time.After(5 * time.Second):
		t.Fatal("alice was not notified")
	}

	assert.Equal(t, id+`|ref.123|(alice|test comment)(bob|"test reply, yooo")`, do(t, carol, "GET_DISCUSSION", id).Body)

	select {
	case got := <-bob.Notifications():
		t.Fatalf("author was notified about %s", got)
	case got := <-carol.Notifications():
		t.Fatalf("non-participant was notified about %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	g := startGateway(t, Options{})
	c := g.dial(t)
	do(t, c, "SIGN_IN", "janedoe")
	require.Equal(t, 1, g.sessions.Len())
	peer := c.LocalAddr()

	require.NoError(t, c.Close())

	require.Eventually(t, func() bool {
		_, ok := g.sessions.GetPeerID("janedoe")
		return !ok && g.srv.Hub().Count() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, g.srv.Hub().Push(peer, "DISCUSSION_UPDATED|aaaaaaa\n"))
}

func TestConnectionLimit(t *testing.T) {
	g := startGateway(t, Options{MaxConnections: 1})
	first := g.dial(t)
	do(t, first, "WHOAMI")

	conn, err := net.Dial("tcp", g.addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, err = bufio.NewReader(conn).ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
}

func TestOversizedLineClosesConnection(t *testing.T) {
	g := startGateway(t, Options{MaxLineBytes: 64})

	conn, err := net.Dial("tcp", g.addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte("aaaaaaa|SIGN_IN|" + strings.Repeat("x", 200) + "\n"))
	require.NoError(t, err)

	_, err = bufio.NewReader(conn).ReadString('\n')
	assert.Error(t, err)
}

func TestClosedClientRejectsPush(t *testing.T) {
	g := startGateway(t, Options{})
	c := g.dial(t)
	do(t, c, "WHOAMI")

	live, ok := g.srv.Hub().Get(c.LocalAddr())
	require.True(t, ok)
	assert.True(t, live.Push("DISCUSSION_UPDATED|aaaaaaa\n"))

	live.Close()
	<-live.Done()
	assert.False(t, live.Push("DISCUSSION_UPDATED|bbbbbbb\n"))
}

func TestAdminEndpointsAndWebSocket(t *testing.T) {
	g := startGateway(t, Options{})
	admin := NewAdminServer(g.srv)
	httpSrv := httptest.NewServer(admin.Handler())
	defer httpSrv.Close()

	resp, err := http.Get(httpSrv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("aaaaaaa|SIGN_IN|wsuser")))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaa", string(msg))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("bbbbbbb|WHOAMI")))
	_, msg, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbb|wsuser", string(msg))

	peer, ok := g.sessions.GetPeerID("wsuser")
	require.True(t, ok)
	require.True(t, g.srv.Hub().Push(peer, "DISCUSSION_UPDATED|ccccccc\n"))
	_, msg, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "DISCUSSION_UPDATED|ccccccc", string(msg))

	resp, err = http.Get(httpSrv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, Stats{Connections: 1, Sessions: 1}, stats)
}

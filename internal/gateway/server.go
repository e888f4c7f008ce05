package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/codefionn/discussd/internal/command"
	"github.com/codefionn/discussd/internal/consts"
	"github.com/codefionn/discussd/internal/logger"
	"github.com/codefionn/discussd/internal/session"
)

// Options configure a Server.
type Options struct {
	Addr           string
	MaxConnections int
	MaxLineBytes   int
	Client         ClientOptions
}

func (o *Options) applyDefaults() {
	if o.MaxConnections <= 0 {
		o.MaxConnections = consts.DefaultMaxConnections
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = consts.DefaultMaxLineBytes
	}
	if o.Client.SendBuffer <= 0 {
		o.Client.SendBuffer = consts.DefaultSendBuffer
	}
	if o.Client.WriteTimeout <= 0 {
		o.Client.WriteTimeout = consts.Timeout10Seconds
	}
}

// Server accepts line protocol connections.
type Server struct {
	opts       Options
	hub        *Hub
	sessions   *session.Directory
	dispatcher *command.Dispatcher
	log        *logger.Logger

	listener net.Listener

	connMu    sync.Mutex
	connCount int
	stopped   bool
	wg        sync.WaitGroup

	// baseCtx is cancelled by Stop and bounds every client.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	running  bool
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewServer creates a server. Sessions is shared with the dispatcher and the
// relay.
func NewServer(opts Options, sessions *session.Directory, dispatcher *command.Dispatcher) *Server {
	opts.applyDefaults()
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:       opts,
		hub:        NewHub(),
		sessions:   sessions,
		dispatcher: dispatcher,
		log:        logger.Global().WithPrefix("gateway"),
		baseCtx:    baseCtx,
		cancel:     cancel,
		stopChan:   make(chan struct{}),
	}
}

// Listen binds the TCP listener.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("server is already listening")
	}
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or Stop is called. It
// calls Listen if needed and returns nil on a clean stop.
func (s *Server) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopChan:
		}
	}()

	s.log.Info("listening on %s (max connections: %d)", s.listener.Addr(), s.opts.MaxConnections)
	s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Info("listener closed, exiting accept loop")
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.log.Error("error accepting connection: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if !s.acquire() {
			s.log.Warn("connection limit reached, rejecting connection from %s", conn.RemoteAddr())
			conn.Close()
			continue
		}

		go func() {
			defer s.release()
			s.serveConn(ctx, NewTCPConn(conn, s.opts.MaxLineBytes))
		}()
	}
}

// ServeConn runs an already established line connection, such as an
// upgraded WebSocket, until it ends. It counts against the connection limit
// and returns false without serving when the limit is reached or the server
// is stopped.
func (s *Server) ServeConn(ctx context.Context, conn LineConn) bool {
	if !s.acquire() {
		s.log.Warn("not accepting connection from %s", conn.RemoteAddr())
		conn.Close()
		return false
	}
	defer s.release()

	s.serveConn(ctx, conn)
	return true
}

func (s *Server) serveConn(ctx context.Context, conn LineConn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	client := NewClient(conn, s.hub, s.sessions, s.dispatcher, s.opts.Client)
	client.Serve(ctx)
}

// acquire reserves a connection slot. Every successful acquire is matched
// by a release.
func (s *Server) acquire() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.stopped || s.connCount >= s.opts.MaxConnections {
		return false
	}
	s.connCount++
	s.wg.Add(1)
	return true
}

func (s *Server) release() {
	s.connMu.Lock()
	s.connCount--
	s.connMu.Unlock()
	s.wg.Done()
}

// Stop closes the listener and every live connection and waits for their
// goroutines to finish.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info("stopping")
		close(s.stopChan)

		s.connMu.Lock()
		s.stopped = true
		s.connMu.Unlock()
		s.cancel()

		s.mu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.log.Error("error closing listener: %v", err)
			}
		}
		s.mu.Unlock()

		s.hub.Shutdown()
		s.wg.Wait()

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.log.Info("stopped")
	})
}

// Hub returns the live client table; it is the push target of the relay.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Stats is a point-in-time view of the gateway.
type Stats struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
}

// Stats returns the number of live connections and signed-in peers.
func (s *Server) Stats() Stats {
	return Stats{Connections: s.hub.Count(), Sessions: s.sessions.Len()}
}

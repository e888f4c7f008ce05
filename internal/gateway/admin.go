package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/discussd/internal/consts"
	"github.com/codefionn/discussd/internal/logger"
)

// AdminServer serves health, stats and the WebSocket transport over HTTP.
type AdminServer struct {
	gateway  *Server
	router   *httprouter.Router
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewAdminServer creates the HTTP front of gw.
func NewAdminServer(gw *Server) *AdminServer {
	a := &AdminServer{
		gateway: gw,
		router:  httprouter.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.Global().WithPrefix("http"),
	}
	a.setupRoutes()
	return a
}

func (a *AdminServer) setupRoutes() {
	a.router.GET("/healthz", a.handleHealth)
	a.router.GET("/stats", a.handleStats)
	a.router.GET("/ws", a.handleWebSocket)
}

// Handler returns the HTTP handler.
func (a *AdminServer) Handler() http.Handler {
	return a.router
}

// Router exposes the router so optional endpoints can be mounted before
// Serve.
func (a *AdminServer) Router() *httprouter.Router {
	return a.router
}

// Listen binds addr.
func (a *AdminServer) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.mu.Lock()
	a.listener = listener
	a.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (a *AdminServer) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Serve serves HTTP until ctx is cancelled. Listen must have been called.
func (a *AdminServer) Serve(ctx context.Context) error {
	a.mu.Lock()
	if a.listener == nil {
		a.mu.Unlock()
		return fmt.Errorf("admin server is not listening")
	}
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: consts.Timeout10Seconds,
		ErrorLog:          logger.NewStdLogger(a.log, slog.LevelWarn),
	}
	server, listener := a.server, a.listener
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("shutdown: %v", err)
		}
	}()

	a.log.Info("admin HTTP on %s", listener.Addr())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

func (a *AdminServer) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *AdminServer) handleStats(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.gateway.Stats()); err != nil {
		a.log.Error("failed to encode stats: %v", err)
	}
}

func (a *AdminServer) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("failed to upgrade websocket from %s: %v", r.RemoteAddr, err)
		return
	}

	lc := NewWebSocketConn(conn, r.RemoteAddr, a.gateway.opts.MaxLineBytes)
	start := time.Now()
	if a.gateway.ServeConn(r.Context(), lc) {
		a.log.Debug("websocket %s served for %s", r.RemoteAddr, time.Since(start).Round(time.Millisecond))
	}
}

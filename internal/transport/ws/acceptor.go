// Package ws accepts authenticated WebSocket connections and hands each one to
// a SessionHandler on its own goroutine.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/office/internal/config"
	"github.com/cory-johannsen/office/internal/presence"
)

// Authenticator validates the token presented at handshake time.
type Authenticator interface {
	Authenticate(token string) (presence.Identity, error)
}

// SessionHandler serves one connection until it closes.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// SessionHandlerFunc adapts a function into a SessionHandler.
type SessionHandlerFunc func(ctx context.Context, conn *Conn) error

// HandleSession calls f.
func (f SessionHandlerFunc) HandleSession(ctx context.Context, conn *Conn) error {
	return f(ctx, conn)
}

// Acceptor is an http.Handler that authenticates, upgrades, and dispatches
// WebSocket connections.
type Acceptor struct {
	cfg      config.WebSocketConfig
	auth     Authenticator
	handler  SessionHandler
	logger   *zap.Logger
	upgrader websocket.Upgrader
	newID    func() string

	wg      sync.WaitGroup
	quit    chan struct{}
	mu      sync.Mutex
	stopped bool
}

// NewAcceptor creates an Acceptor.
//
// Precondition: auth, handler, and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be mounted on an http.ServeMux.
func NewAcceptor(cfg config.WebSocketConfig, auth Authenticator, handler SessionHandler, logger *zap.Logger) *Acceptor {
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)
	return &Acceptor{
		cfg:     cfg,
		auth:    auth,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		newID: uuid.NewString,
		quit:  make(chan struct{}),
	}
}

// ServeHTTP authenticates the request and, on success, upgrades it.
// Unauthenticated requests receive 401 and never reach the handler.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.mu.Lock()
	stopped := a.stopped
	if !stopped {
		a.wg.Add(1)
	}
	a.mu.Unlock()
	if stopped {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer a.wg.Done()

	identity, err := a.auth.Authenticate(tokenFromRequest(r))
	if err != nil {
		a.logger.Info("connection rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("state", "rejected"),
			zap.String("reason", "unauthorized"),
		)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	raw, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		a.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	conn := newConn(raw, a.newID(), identity, r.RemoteAddr, a.cfg)
	a.serve(conn)
}

func (a *Acceptor) serve(conn *Conn) {
	start := time.Now()
	defer conn.Close()

	logger := a.logger.With(
		zap.String("connection_id", conn.ID()),
		zap.String("user_id", conn.Identity().UserID),
		zap.String("remote_addr", conn.RemoteAddr()),
	)
	logger.Info("client connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel context and unblock the reader when quit signal received
	go func() {
		select {
		case <-a.quit:
			cancel()
			_ = conn.Close()
		case <-ctx.Done():
		}
	}()

	if err := a.handler.HandleSession(ctx, conn); err != nil {
		logger.Info("session ended",
			zap.String("reason", closeReason(err)),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	logger.Info("session ended cleanly", zap.Duration("duration", time.Since(start)))
}

// Stop refuses new connections, cancels every live session, and waits for
// their handlers to return.
//
// Postcondition: No handler goroutine started by this Acceptor is running.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	close(a.quit)
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("websocket acceptor stopped")
}

// tokenFromRequest reads the handshake credential from the "token" query
// parameter or a bearer Authorization header.
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// HealthHandler reports liveness and the current session count.
func HealthHandler(count func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Presence-Sessions", strconv.Itoa(count()))
		_, _ = w.Write([]byte("ok"))
	})
}

// IsUnauthorized reports whether a dial failed because the server rejected the token.
func IsUnauthorized(resp *http.Response, err error) bool {
	return err != nil && errors.Is(err, websocket.ErrBadHandshake) && resp != nil && resp.StatusCode == http.StatusUnauthorized
}

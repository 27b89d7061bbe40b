// Package httpapi implements the HTTP command/status surface (C11) and
// its JSON codec (C2) — spec.md §4.10, §6. It never touches playback
// state directly: every mutation goes through the shared command
// register, the same plane the reader's own tick loop consumes from.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxbow/mixplay/internal/catalog"
	"github.com/foxbow/mixplay/internal/command"
	"github.com/foxbow/mixplay/internal/config"
	"github.com/foxbow/mixplay/internal/player"
	"github.com/gin-gonic/gin"
)

// searchTimeout bounds how long GET /mpctrl/status?cmd=search-result
// waits on the reader to fill in a pending search — the REDESIGN FLAGS
// in spec.md §9 replace the original's 250µs poll loop with
// SearchState.Wait, but a handler still can't block forever on a
// reader that never gets to the command.
const searchTimeout = 5 * time.Second

// subscriberClientBase is where allocated update-subscription client
// ids start, well above the handful of small integers real clients
// pick for themselves (spec.md §4.10: "clientid == -1 ... allocate a
// new client id").
const subscriberClientBase = 10000

// Server is the Gin-based HTTP front end, grounded on the teacher's
// Gin handler/service layer (internal/radio/handler, internal/radio/service)
// rather than its stdlib net/http server — SPEC_FULL.md's domain stack
// calls for Gin here.
type Server struct {
	cfg      *config.Config
	cat      *catalog.Catalog
	player   *player.Reader
	reg      *command.Register
	msgs     *command.MessageRing
	clientLk *command.ClientLock

	engine     *gin.Engine
	httpServer *http.Server

	nextClientID atomic.Int64

	// cursorMu/cursors track each polling client's last-read message-ring
	// position across requests — the Go replacement for mpserver.c's
	// per-client *count pointer, since HTTP gives us no connection to
	// hang that state off between a client's two consecutive GETs.
	cursorMu sync.Mutex
	cursors  map[int]command.Cursor
}

// New wires a Server to the shared collaborators handed to player.New —
// the same register, message ring, and client lock, so commands posted
// over HTTP and messages read back are the exact ones the reader
// produces and consumes.
func New(cfg *config.Config, cat *catalog.Catalog, rdr *player.Reader,
	reg *command.Register, msgs *command.MessageRing, clientLk *command.ClientLock) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), securityHeaders())

	s := &Server{
		cfg: cfg, cat: cat, player: rdr,
		reg: reg, msgs: msgs, clientLk: clientLk,
		engine:  engine,
		cursors: make(map[int]command.Cursor),
	}
	s.nextClientID.Store(subscriberClientBase)
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // update-subscription connections stream indefinitely
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully — grounded on the teacher's Server.Start(ctx) pattern
// (internal/radio/server.go).
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// securityHeaders mirrors the teacher's SecurityHeadersMiddleware
// (internal/radio/middleware.go), adapted to a Gin v1.11 HandlerFunc.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		// xmixplay identifies mixplay-aware clients so they can suppress
		// "204 No Content" handling on pure control POSTs — spec.md §6.
		c.Header("xmixplay", "1")
		c.Next()
	}
}

func (s *Server) allocClientID() int {
	return int(s.nextClientID.Add(1))
}

// messageFor returns the next ring message visible to cid since its
// last call (or "" if none), advancing cid's tracked cursor by exactly
// one message — mpserver.c's one-message-per-status-response trickle,
// never a batch. A client's first call sees nothing written before it.
func (s *Server) messageFor(cid int) string {
	s.cursorMu.Lock()
	cursor, ok := s.cursors[cid]
	if !ok {
		cursor = s.msgs.NewCursor()
	}
	s.cursorMu.Unlock()

	msg, next, _ := s.msgs.ReadOne(cursor, cid, s.clientLk)

	s.cursorMu.Lock()
	s.cursors[cid] = next
	s.cursorMu.Unlock()

	return msg
}

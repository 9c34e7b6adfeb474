package server

import (
	"context"
	"net/http"
	"time"

	"messer/internal/connection"
	"messer/internal/logger"
	"messer/internal/middleware"
	"messer/internal/model"
	"messer/internal/notify"
	"messer/internal/protocol"
	"messer/internal/session"
	"messer/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ConnectionHandler upgrades /api/ws requests and runs one session each.
type ConnectionHandler struct {
	store      *store.Store
	dispatcher *protocol.Dispatcher
	bus        *notify.Bus
	presence   session.Presence
	sessionCfg session.Config
	connOpts   connection.Options
	upgrader   websocket.Upgrader

	// base is cancelled on shutdown to close every session.
	base context.Context
}

type HandlerConfig struct {
	AllowedOrigins []string
	Session        session.Config
	Connection     connection.Options
}

func NewConnectionHandler(base context.Context, st *store.Store, d *protocol.Dispatcher, bus *notify.Bus, presence session.Presence, cfg HandlerConfig) *ConnectionHandler {
	return &ConnectionHandler{
		store:      st,
		dispatcher: d,
		bus:        bus,
		presence:   presence,
		sessionCfg: cfg.Session,
		connOpts:   cfg.Connection,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		base: base,
	}
}

// originChecker allows requests without an Origin header (non-browser
// clients), a "*" entry, or an exact match.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// WebSocketHandler always upgrades. A request without a valid identity gets
// a session that closes before reading anything.
func (h *ConnectionHandler) WebSocketHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := h.identify(c.Request)

		ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "remote", c.ClientIP(), "error", err)
			return
		}

		conn := connection.NewWebSocketConnection(ws, h.connOpts)
		session.New(conn, user, h.dispatcher, h.bus, h.presence, h.sessionCfg).Run(h.base)
	}
}

func (h *ConnectionHandler) identify(r *http.Request) *model.User {
	userID, err := middleware.ValidateToken(middleware.TokenFromRequest(r))
	if err != nil {
		logger.Debug("websocket without identity", "remote", r.RemoteAddr, "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	user, err := h.store.UserByID(ctx, userID)
	if err != nil {
		logger.Warn("token for unknown user", "user_id", userID, "error", err)
		return nil
	}
	return user
}

package service

import (
	"context"

	"messer/internal/config"
	"messer/internal/connection"
	"messer/internal/logger"
	"messer/internal/notify"
	"messer/internal/protocol"
	"messer/internal/revocation"
	"messer/internal/router"
	"messer/internal/server"
	"messer/internal/session"
	"messer/internal/social"
	"messer/internal/status"
	"messer/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Manager owns the object graph of one process.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	store         *store.Store
	socialService *social.Service
	bus           *notify.Bus
	statusManager *status.Manager
	dispatcher    *protocol.Dispatcher
	connHandler   *server.ConnectionHandler
	revocation    *revocation.Listener
	router        *gin.Engine
}

// NewManager builds every component. rdb may be nil, which disables the
// presence mirror and the revocation listener.
func NewManager(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{ctx: ctx, cancel: cancel}

	m.store = store.New(db)
	m.bus = notify.NewBus()
	m.statusManager = status.NewManager(rdb)
	m.socialService = social.NewService(m.store, cfg.Social.MaxMessageLength, social.WithPresence(m.statusManager))
	m.dispatcher = protocol.NewDispatcher(m.socialService, protocol.NewJSONEncoder())

	m.connHandler = server.NewConnectionHandler(ctx, m.store, m.dispatcher, m.bus, m.statusManager, server.HandlerConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Session: session.Config{
			SendBuffer:     cfg.Session.SendBuffer,
			DropLimit:      cfg.Session.DropLimit,
			HandlerTimeout: cfg.Session.HandlerTimeout,
			WriteWait:      cfg.Session.WriteWait,
			PingPeriod:     connection.PingPeriod(cfg.Session.PongWait),
			RateLimit:      cfg.Session.RateLimit,
			RateBurst:      cfg.Session.RateBurst,
		},
		Connection: connection.Options{
			WriteWait:      cfg.Session.WriteWait,
			PongWait:       cfg.Session.PongWait,
			MaxMessageSize: cfg.Session.MaxMessageSize,
		},
	})
	if rdb != nil {
		m.revocation = revocation.NewListener(rdb, cfg.Redis.RevocationChannel, m.bus)
	}
	m.router = router.SetupRouter(m.connHandler, m.socialService, cfg.Server.AllowedOrigins)

	logger.Info("service manager initialized", "redis", rdb != nil)
	return m
}

func (m *Manager) Router() *gin.Engine { return m.router }

func (m *Manager) Bus() *notify.Bus { return m.bus }

func (m *Manager) Store() *store.Store { return m.store }

func (m *Manager) SocialService() *social.Service { return m.socialService }

func (m *Manager) StatusManager() *status.Manager { return m.statusManager }

// RunRevocation blocks on the revocation listener until ctx is done. It
// returns immediately when Redis is disabled.
func (m *Manager) RunRevocation(ctx context.Context) error {
	if m.revocation == nil {
		logger.Warn("redis disabled, external logout will not close sessions")
		return nil
	}
	return m.revocation.Run(ctx)
}

// Shutdown closes every live session.
func (m *Manager) Shutdown() {
	logger.Info("closing sessions", "online_users", len(m.statusManager.OnlineUsers()))
	m.cancel()
}

// Package session runs one client connection: the read loop that feeds the
// dispatcher, the writer that drains the outbound queue, and the bus
// subscription that receives pushes.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"messer/internal/connection"
	"messer/internal/logger"
	"messer/internal/metrics"
	"messer/internal/model"
	"messer/internal/notify"
	"messer/internal/protocol"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type State int32

const (
	Connecting State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// Close reasons, also used as metric labels.
const (
	ReasonUnauthenticated   = "unauthenticated"
	ReasonClientGone        = "client_disconnected"
	ReasonWriteFailed       = "write_failed"
	ReasonSlowConsumer      = "slow_consumer"
	ReasonConnectionClosing = "connection_closing"
	ReasonShutdown          = "server_shutdown"
)

// Presence tracks live sessions per user.
type Presence interface {
	Join(userID string)
	Leave(userID string)
}

type Config struct {
	SendBuffer     int
	DropLimit      int
	HandlerTimeout time.Duration
	WriteWait      time.Duration
	PingPeriod     time.Duration
	RateLimit      float64
	RateBurst      int
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.DropLimit <= 0 {
		c.DropLimit = 32
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 10 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = connection.WriteWait
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = connection.PingPeriod(connection.PongWait)
	}
	return c
}

type outbound struct {
	data []byte
	// last closes the session once data is written.
	last bool
}

type Session struct {
	id         string
	conn       connection.Connection
	user       *model.User
	dispatcher *protocol.Dispatcher
	bus        *notify.Bus
	presence   Presence
	cfg        Config
	limiter    protocol.Limiter

	state   atomic.Int32
	drops   atomic.Int32
	send    chan outbound
	closing chan struct{}
	written chan struct{}

	// lifeMu orders the subscribe in Run against the teardown in Close.
	lifeMu    sync.Mutex
	closeOnce sync.Once
	reasonMu  sync.Mutex
	reason    string
}

// New builds a session for conn. user is nil when the connection carried
// no valid identity.
func New(conn connection.Connection, user *model.User, d *protocol.Dispatcher, bus *notify.Bus, presence Presence, cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:         uuid.New().String(),
		conn:       conn,
		user:       user,
		dispatcher: d,
		bus:        bus,
		presence:   presence,
		cfg:        cfg,
		send:       make(chan outbound, cfg.SendBuffer),
		closing:    make(chan struct{}),
		written:    make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Reason reports why the session closed, empty while open.
func (s *Session) Reason() string {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	return s.reason
}

// Run serves the connection until it closes. Cancelling ctx closes the
// session but never interrupts a handler already running.
func (s *Session) Run(ctx context.Context) {
	if s.user == nil {
		s.state.Store(int32(Closed))
		s.setReason(ReasonUnauthenticated)
		metrics.SessionsClosed.WithLabelValues(ReasonUnauthenticated).Inc()
		_ = s.conn.Close("")
		return
	}

	s.lifeMu.Lock()
	if !s.state.CompareAndSwap(int32(Connecting), int32(Authenticated)) {
		s.lifeMu.Unlock()
		_ = s.conn.Close(s.Reason())
		return
	}
	s.bus.Subscribe(s.user.ID, s)
	if s.presence != nil {
		s.presence.Join(s.user.ID)
	}
	metrics.ActiveSessions.Inc()
	s.lifeMu.Unlock()
	logger.Info("session opened", "session_id", s.id, "user_id", s.user.ID, "remote", s.conn.RemoteAddr())

	go s.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Close(ReasonShutdown)
		case <-s.closing:
		}
	}()

	s.readLoop(ctx)
	s.Close(ReasonClientGone)
	<-s.written
}

func (s *Session) readLoop(ctx context.Context) {
	encoder := s.dispatcher.Encoder()
	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			return
		}
		if s.State() != Authenticated {
			return
		}

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HandlerTimeout)
		resp, events := s.dispatcher.Dispatch(hctx, s.user, frame, s.limiter)
		cancel()

		data, err := encoder.EncodeResponse(resp)
		if err != nil {
			logger.Error("encode response", "session_id", s.id, "endpoint", resp.Endpoint, "error", err)
			data, _ = encoder.EncodeResponse(&protocol.Response{
				Endpoint: resp.Endpoint,
				ID:       resp.ID,
				Errors:   []protocol.ErrorEntry{{Code: "INTERNAL", Message: "internal error"}},
			})
		}
		queued := s.enqueueWait(data)

		// the mutation is committed; publish regardless of this session's fate
		s.bus.Publish(events...)
		if !queued {
			return
		}
	}
}

// enqueueWait queues a response, waiting up to WriteWait for space.
func (s *Session) enqueueWait(data []byte) bool {
	select {
	case s.send <- outbound{data: data}:
		return true
	default:
	}

	timer := time.NewTimer(s.cfg.WriteWait)
	defer timer.Stop()
	select {
	case s.send <- outbound{data: data}:
		return true
	case <-s.closing:
		return false
	case <-timer.C:
		s.Close(ReasonSlowConsumer)
		return false
	}
}

// Deliver queues a push without blocking. A full queue drops the event;
// DropLimit consecutive drops close the session.
func (s *Session) Deliver(ev notify.Event) bool {
	if s.State() != Authenticated {
		return false
	}
	data, err := s.dispatcher.Encoder().EncodeNotification(s.dispatcher.Notification(ev))
	if err != nil {
		logger.Error("encode notification", "session_id", s.id, "type", ev.Type, "error", err)
		return false
	}
	last := ev.Type == notify.ConnectionClosing

	select {
	case <-s.closing:
		return false
	default:
	}
	select {
	case s.send <- outbound{data: data, last: last}:
		s.drops.Store(0)
		return true
	default:
	}

	if last {
		s.Close(ReasonConnectionClosing)
		return false
	}
	if int(s.drops.Add(1)) >= s.cfg.DropLimit {
		logger.Warn("closing slow session", "session_id", s.id, "user_id", s.user.ID)
		s.Close(ReasonSlowConsumer)
	}
	return false
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close(s.Reason())
		close(s.written)
	}()

	for {
		select {
		case out := <-s.send:
			if err := s.conn.WriteFrame(out.data); err != nil {
				s.Close(ReasonWriteFailed)
				return
			}
			if out.last {
				s.Close(ReasonConnectionClosing)
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(); err != nil {
				s.Close(ReasonWriteFailed)
				return
			}
		case <-s.closing:
			return
		}
	}
}

// Close moves the session to Closed once. It never blocks on the network;
// the writer tears the connection down.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.lifeMu.Lock()
		defer s.lifeMu.Unlock()

		s.setReason(reason)
		prev := State(s.state.Swap(int32(Closed)))
		close(s.closing)
		if prev != Authenticated {
			return
		}

		s.bus.Unsubscribe(s.user.ID, s)
		if s.presence != nil {
			s.presence.Leave(s.user.ID)
		}
		metrics.ActiveSessions.Dec()
		metrics.SessionsClosed.WithLabelValues(reason).Inc()
		logger.Info("session closed", "session_id", s.id, "user_id", s.user.ID, "reason", reason)
	})
}

func (s *Session) setReason(reason string) {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	if s.reason == "" {
		s.reason = reason
	}
}

// Package revocation closes the sessions of users whose authentication was
// revoked elsewhere. The auth service announces revocations on a Redis
// pub/sub channel as {"user_id": "..."}.
package revocation

import (
	"context"
	"encoding/json"
	"errors"

	"messer/internal/constants"
	"messer/internal/logger"
	"messer/internal/notify"

	"github.com/go-redis/redis/v8"
)

// Publisher is the part of the bus the listener needs.
type Publisher interface {
	Publish(events ...notify.Event)
}

type Message struct {
	UserID string `json:"user_id"`
}

// ClosingContent is the payload of connection_closing.
type ClosingContent struct {
	Reason string `json:"reason"`
}

type Listener struct {
	client  *redis.Client
	channel string
	bus     Publisher
}

func NewListener(client *redis.Client, channel string, bus Publisher) *Listener {
	return &Listener{client: client, channel: channel, bus: bus}
}

// Run consumes the channel until ctx is done. It returns nil on
// cancellation.
func (l *Listener) Run(ctx context.Context) error {
	pubsub := l.client.Subscribe(ctx, l.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	logger.Info("revocation listener subscribed", "channel", l.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("revocation channel closed")
			}
			if err := l.Handle([]byte(msg.Payload)); err != nil {
				logger.Warn("bad revocation message", "payload", msg.Payload, "error", err)
			}
		}
	}
}

// Handle publishes connection_closing for the user named in payload.
func (l *Listener) Handle(payload []byte) error {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	if m.UserID == "" {
		return errors.New("missing user_id")
	}
	logger.Info("revoking sessions", "user_id", m.UserID)
	l.bus.Publish(notify.Event{
		Recipient: m.UserID,
		Type:      notify.ConnectionClosing,
		Content:   ClosingContent{Reason: constants.CloseReasonRevoked},
	})
	return nil
}

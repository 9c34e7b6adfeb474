package connection

import (
	"errors"
	"time"
)

// Connection is a message-oriented duplex link to one client. Reads happen
// on one goroutine and writes on another; Close may be called from either.
type Connection interface {
	// ReadFrame blocks for the next data frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes one text frame within the write deadline.
	WriteFrame(data []byte) error

	// Ping writes a keepalive control frame.
	Ping() error

	// Close sends a close frame with reason when possible, then tears the
	// link down. Subsequent calls are no-ops.
	Close(reason string) error

	RemoteAddr() string
}

// Connection timeout and heartbeat defaults
const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	MaxMessageSize = 16 * 1024
)

// PingPeriod is how often to ping for a given pong wait.
func PingPeriod(pongWait time.Duration) time.Duration {
	return (pongWait * 9) / 10
}

var (
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBinaryFrame is returned for frames the JSON protocol cannot carry.
	ErrBinaryFrame = errors.New("binary frames are not supported")
)

// Options tunes a connection. Zero fields take the defaults above.
type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = PongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = MaxMessageSize
	}
	return o
}

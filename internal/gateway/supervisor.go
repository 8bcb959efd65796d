package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/campaign-notifier/internal/metrics"
)

// State of the gateway connection.
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StateConnected
	StateBackingOff
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackingOff:
		return "backing-off"
	default:
		return "stopped"
	}
}

// Connection is a gateway client that can be opened repeatedly.
type Connection interface {
	Open() error
	Close() error
	Disconnects() <-chan struct{}
}

// Supervisor keeps a Connection open. A failed Open waits a fixed delay
// before the next attempt, forever; a disconnect reconnects immediately.
type Supervisor struct {
	conn  Connection
	delay time.Duration
	log   logrus.FieldLogger
	state atomic.Int32
}

// NewSupervisor creates a Supervisor retrying every delay.
func NewSupervisor(conn Connection, delay time.Duration, log logrus.FieldLogger) *Supervisor {
	if delay <= 0 {
		delay = 10 * time.Second
	}
	return &Supervisor{conn: conn, delay: delay, log: log}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	if State(s.state.Swap(int32(st))) != st {
		s.log.WithField("state", st.String()).Debug("gateway state changed")
	}
	metrics.GatewayState.Set(float64(st))
}

// Serve implements suture.Service. It returns ctx.Err() once ctx is done,
// after closing the connection.
func (s *Supervisor) Serve(ctx context.Context) error {
	defer s.setState(StateStopped)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.drainDisconnects()
		s.setState(StateConnecting)
		if err := s.conn.Open(); err != nil {
			metrics.GatewayConnectFailures.Inc()
			s.log.WithError(err).WithField("retry_in", s.delay.String()).Error("❌ Gateway connection failed")
			s.setState(StateBackingOff)
			if !s.wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		s.setState(StateConnected)
		select {
		case <-ctx.Done():
			if err := s.conn.Close(); err != nil {
				s.log.WithError(err).Warn("closing gateway")
			}
			s.log.Info("✅ Gateway closed")
			return ctx.Err()
		case <-s.conn.Disconnects():
			s.log.Warn("Gateway disconnected, reconnecting")
			if err := s.conn.Close(); err != nil {
				s.log.WithError(err).Debug("closing dropped gateway")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Supervisor) String() string {
	return "discord-gateway"
}

// wait sleeps for the retry delay; it reports false if ctx ended first.
func (s *Supervisor) wait(ctx context.Context) bool {
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// drop disconnect signals raised by our own Close calls
func (s *Supervisor) drainDisconnects() {
	for {
		select {
		case <-s.conn.Disconnects():
		default:
			return
		}
	}
}

// Package gateway owns the Discord gateway connection and its reconnect policy.
package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Discord wraps a discordgo session. The session's own reconnect logic is
// turned off; disconnects are reported on Disconnects for the Supervisor.
// discordgo emits a Disconnect on every Close, so only the first one raised
// while a connection is live is forwarded.
type Discord struct {
	Session *discordgo.Session

	ready       chan struct{}
	readyOnce   sync.Once
	disconnects chan struct{}
	log         logrus.FieldLogger

	mu     sync.Mutex
	active bool
}

// NewDiscord creates a bot session. handshakeTimeout bounds the websocket dial.
func NewDiscord(token string, handshakeTimeout time.Duration, log logrus.FieldLogger) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.ShouldReconnectOnError = false
	// handlers run before Close returns, so our own Close cannot leak a
	// Disconnect into the next connection
	s.SyncEvents = true
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	s.Dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	d := &Discord{
		Session:     s,
		ready:       make(chan struct{}),
		disconnects: make(chan struct{}, 1),
		log:         log,
	}
	s.AddHandler(d.onReady)
	s.AddHandler(d.onDisconnect)
	return d, nil
}

// Open connects the gateway. A drop of the new connection is reported once.
func (d *Discord) Open() error {
	d.setActive(true)
	if err := d.Session.Open(); err != nil {
		d.setActive(false)
		return err
	}
	return nil
}

// Close disconnects without reporting a disconnect.
func (d *Discord) Close() error {
	d.setActive(false)
	return d.Session.Close()
}

func (d *Discord) setActive(v bool) {
	d.mu.Lock()
	d.active = v
	d.mu.Unlock()
}

// Ready is closed after the first READY event.
func (d *Discord) Ready() <-chan struct{} { return d.ready }

// Disconnects receives a value whenever the websocket goes away.
func (d *Discord) Disconnects() <-chan struct{} { return d.disconnects }

func (d *Discord) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	name := ""
	if r.User != nil {
		name = r.User.String()
	}
	d.log.WithField("user", name).Info("✅ Discord bot logged in")
	d.readyOnce.Do(func() { close(d.ready) })
}

func (d *Discord) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	d.mu.Lock()
	live := d.active
	d.active = false
	d.mu.Unlock()
	if !live {
		return
	}
	select {
	case d.disconnects <- struct{}{}:
	default:
	}
}

// Package broker owns the MQTT connection: connect, subscribe to every
// topic, retry on a fixed delay and publish plug commands.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"solar_dashboard"
	"solar_dashboard/internal/config"
	"solar_dashboard/internal/logger"
	"solar_dashboard/internal/topic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	connectTimeout = 3 * time.Second
	publishTimeout = 2 * time.Second
	disconnectWait = 250 // ms

	clientIDPrefix = "mqtt_panel"
)

var ErrNotConnected = errors.New("broker: not connected")

// Router receives every inbound message.
type Router interface {
	Route(raw string, payload []byte) topic.Route
}

// StatusSink is told about every connection state change.
type StatusSink interface {
	SetConnection(state solar_dashboard.ConnectionState, message string)
}

// Manager keeps one MQTT client connected for the lifetime of Run.
type Manager struct {
	cfg config.MQTTConfig
	log *logger.Logger

	router Router
	status StatusSink

	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu     sync.Mutex
	client mqtt.Client

	lost chan error
}

func NewManager(cfg config.MQTTConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		cfg:       cfg,
		log:       log,
		newClient: mqtt.NewClient,
		lost:      make(chan error, 1),
	}
}

// Attach sets where inbound messages and connection banners go. It must be
// called before Run.
func (m *Manager) Attach(router Router, status StatusSink) {
	m.router = router
	m.status = status
}

// BrokerURL builds the broker address. A path selects the WebSocket
// transport the devices' broker exposes for browsers.
func BrokerURL(cfg config.MQTTConfig) string {
	if cfg.Path != "" {
		scheme := "ws"
		if cfg.UseTLS {
			scheme = "wss"
		}
		path := cfg.Path
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return fmt.Sprintf("%s://%s:%d%s", scheme, cfg.Host, cfg.Port, path)
	}
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
}

func (m *Manager) clientID() string {
	if m.cfg.ClientID != "" {
		return m.cfg.ClientID
	}
	return clientIDPrefix + uuid.NewString()[:8]
}

func (m *Manager) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(m.cfg))
	opts.SetClientID(m.clientID())
	opts.SetUsername(m.cfg.Username)
	opts.SetPassword(m.cfg.Password)
	opts.SetCleanSession(m.cfg.CleanSession)
	opts.SetConnectTimeout(connectTimeout)
	// Run owns reconnection.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case m.lost <- err:
		default:
		}
	})
	return opts
}

// Run connects and keeps reconnecting after failures and losses, waiting
// reconnect_timeout between attempts, until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if m.router == nil || m.status == nil {
		return errors.New("broker: Attach must be called before Run")
	}

	for {
		err := m.connect(ctx)
		if ctx.Err() != nil {
			m.disconnect()
			return nil
		}

		if err != nil {
			m.log.Warnw("mqtt_connect_failed", "broker", BrokerURL(m.cfg), "err", err)
			m.status.SetConnection(solar_dashboard.ConnectionFailed, "Connection failed: "+err.Error()+" Retrying...")
		} else {
			m.log.Infow("mqtt_connected", "broker", BrokerURL(m.cfg))
			m.status.SetConnection(solar_dashboard.ConnectionUp, "Connected to "+m.cfg.Host)

			select {
			case <-ctx.Done():
				m.disconnect()
				return nil
			case lostErr := <-m.lost:
				m.log.Warnw("mqtt_connection_lost", "err", lostErr)
				m.status.SetConnection(solar_dashboard.ConnectionLost, "Connection lost. Reconnecting...")
				m.disconnect()
			}
		}

		t := time.NewTimer(m.cfg.ReconnectTimeout)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (m *Manager) connect(ctx context.Context) error {
	// Drop a loss signal left over from the previous client.
	select {
	case <-m.lost:
	default:
	}

	client := m.newClient(m.options())
	if err := wait(ctx, client.Connect()); err != nil {
		if ctx.Err() != nil {
			client.Disconnect(0)
		}
		return err
	}

	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		m.router.Route(msg.Topic(), msg.Payload())
	}
	if err := wait(ctx, client.Subscribe(topic.WildcardTopic, 0, onMessage)); err != nil {
		client.Disconnect(disconnectWait)
		return fmt.Errorf("subscribe %s: %w", topic.WildcardTopic, err)
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	return nil
}

func (m *Manager) disconnect() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectWait)
	}
}

// Publish sends one fire-and-forget message (qos 0, not retained).
func (m *Manager) Publish(t, payload string) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}
	tok := client.Publish(t, 0, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", t)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	return nil
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

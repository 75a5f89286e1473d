// internal/writer/mqtt/publisher.go
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("writer mqtt: not connected")

// Config is minimal broker config.
type Config struct {
	Broker   string
	ClientID string
	Topic    string // prefix
	QoS      byte
	Username string
	Password string
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher sends JSON documents below one topic prefix.
type Publisher struct {
	cli    client
	cfg    Config
	log    *slog.Logger
	mu     sync.RWMutex
	online bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a publisher. It does not connect.
func New(cfg Config, log *slog.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("writer mqtt: broker required")
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Publisher{
		cfg:    cfg,
		log:    log.With("component", "mqtt"),
		stopCh: make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ paho.Client) {
		p.setOnline(true)
		p.log.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.setOnline(false)
		p.log.Warn("mqtt connection lost", "err", err)
	})

	p.cli = paho.NewClient(opts)
	return p, nil
}

// newWithClient is used by tests.
func newWithClient(cfg Config, cli client, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{cli: cli, cfg: cfg, log: log, online: true, stopCh: make(chan struct{})}
}

// Connect waits for the first broker connection, honouring ctx and Close.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return errors.New("writer mqtt: publisher closed")
	default:
	}
	if p.IsConnected() {
		return nil
	}

	token := p.cli.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("writer mqtt: connect: %w", err)
			}
			p.setOnline(true)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return errors.New("writer mqtt: publisher closed")
		default:
		}
	}
}

// Topic returns the full topic for one sender and document kind.
func (p *Publisher) Topic(sender, kind string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.Topic, sender, kind)
}

// Publish marshals v and publishes it to Topic(sender, kind).
func (p *Publisher) Publish(sender, kind string, v any, retained bool) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("writer mqtt: marshal %s: %w", kind, err)
	}

	topic := p.Topic(sender, kind)
	token := p.cli.Publish(topic, p.cfg.QoS, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("writer mqtt: publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("writer mqtt: publish %s: %w", topic, err)
	}

	p.log.Debug("published", "topic", topic)
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	online := p.online
	p.mu.RUnlock()
	return online && p.cli.IsConnected()
}

// Close stops the publisher. Safe to call more than once.
func (p *Publisher) Close() error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.cli.Disconnect(250)
	p.setOnline(false)
	return nil
}

func (p *Publisher) setOnline(v bool) {
	p.mu.Lock()
	p.online = v
	p.mu.Unlock()
}

// Package broker publishes node events to an AMQP compliant broker (ie RabbitMQ).
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

// Exchange is the durable fanout exchange events are published to.
const Exchange = "lnbridge.node"

var (
	// ErrBrokerConnection wraps every failure talking to the broker.
	ErrBrokerConnection = errors.New("broker connection error")
	// ErrKindNotPublishable is returned for event kinds that stay in-process.
	ErrKindNotPublishable = errors.New("event kind is not published to the broker")
)

// Publishable reports whether events of kind leave the process.
func Publishable(kind domain.EventKind) bool {
	return kind == domain.EventKindPaymentReceived
}

// Config holds the broker connection settings. An empty Host means the broker
// is not configured.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

// Enabled reports whether a broker host is set.
func (c Config) Enabled() bool {
	return c.Host != ""
}

// URI builds the amqp:// connection string.
func (c Config) URI() string {
	port := c.Port
	if port == 0 {
		port = 5672
	}
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     port,
		Username: c.Username,
		Password: c.Password,
		Vhost:    vhost,
	}.String()
}

// channel is the part of *amqp.Channel the connector uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// connection is the part of *amqp.Connection the connector uses.
type connection interface {
	Channel() (channel, error)
	Close() error
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c amqpConnection) Close() error {
	return c.conn.Close()
}

// Connector holds a broker connection and a cached channel for reuse.
type Connector struct {
	mu   sync.Mutex
	conn connection
	ch   channel
	log  *slog.Logger

	lastErr error
}

// Dial connects to the broker and declares the exchange.
func Dial(cfg Config, log *slog.Logger) (*Connector, error) {
	conn, err := amqp.Dial(cfg.URI())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s:%d: %v", ErrBrokerConnection, cfg.Host, cfg.Port, err)
	}
	c, err := newConnector(amqpConnection{conn: conn}, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.log.Info("Connected to broker", "host", cfg.Host, "port", cfg.Port, "exchange", Exchange)
	return c, nil
}

func newConnector(conn connection, log *slog.Logger) (*Connector, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Connector{conn: conn, log: log.With("component", "broker")}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: open channel: %v", ErrBrokerConnection, err)
	}
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%w: declare exchange: %v", ErrBrokerConnection, err)
	}
	c.ch = ch
	return c, nil
}

// Publish sends payload to the exchange with kind as routing key.
func (c *Connector) Publish(ctx context.Context, kind domain.EventKind, payload []byte) error {
	if !Publishable(kind) {
		return ErrKindNotPublishable
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil {
		ch, err := c.conn.Channel()
		if err != nil {
			c.lastErr = err
			return fmt.Errorf("%w: open channel: %v", ErrBrokerConnection, err)
		}
		c.ch = ch
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         kind.String(),
		Body:         payload,
	}
	if err := c.ch.Publish(Exchange, kind.String(), false, false, msg); err != nil {
		// the channel is unusable after a failed publish
		_ = c.ch.Close()
		c.ch = nil
		c.lastErr = err
		c.log.Warn("Publish failed, dropping channel", "kind", kind, "error", err)
		return fmt.Errorf("%w: publish %s: %v", ErrBrokerConnection, kind, err)
	}
	c.lastErr = nil
	return nil
}

// Health returns the error of the last failed broker operation, if the
// connector has not recovered since.
func (c *Connector) Health(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr != nil {
		return fmt.Errorf("%w: %v", ErrBrokerConnection, c.lastErr)
	}
	return nil
}

// Close terminates the channel and the connection.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			c.log.Warn("Error closing channel", "error", err)
		}
		c.ch = nil
	}
	return c.conn.Close()
}

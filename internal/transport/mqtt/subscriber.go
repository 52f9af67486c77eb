package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"hygrostat-cloud/internal/observability/metrics"
)

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// Message is one delivery from the broker.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// MessageHandler consumes one delivery.
type MessageHandler func(msg Message)

// Config defines the broker session.
type Config struct {
	BrokerAddr string
	Topic      string
	QoS        byte
	KeepAlive  uint16
	QueueSize  int
}

// Subscriber maintains a broker session and feeds deliveries through a
// bounded queue to one consumer goroutine, decoupling delivery cadence
// from processing. When the queue is full the delivery is dropped and
// counted; delivery is at-most-once end to end.
type Subscriber struct {
	cfg     Config
	handler MessageHandler
	logger  *log.Logger
	queue   chan Message
}

// NewSubscriber constructs a subscriber.
func NewSubscriber(cfg Config, handler MessageHandler, logger *log.Logger) (*Subscriber, error) {
	if cfg.BrokerAddr == "" {
		return nil, errors.New("mqtt subscribe: empty broker address")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt subscribe: empty topic")
	}
	if handler == nil {
		return nil, errors.New("mqtt subscribe: nil handler")
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Subscriber{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		queue:   make(chan Message, cfg.QueueSize),
	}, nil
}

// Run connects, subscribes, and dispatches until the context is
// cancelled, reconnecting with capped exponential backoff.
func (s *Subscriber) Run(ctx context.Context) error {
	go s.consume(ctx)

	backoff := initialBackoff
	for {
		connected, err := s.runSession(ctx)
		metrics.SetTransportConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = initialBackoff
		}
		s.logger.Printf("mqtt subscribe: session ended: %v; reconnecting in %s", err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Subscriber) runSession(ctx context.Context) (connected bool, err error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.BrokerAddr)
	if err != nil {
		return false, err
	}

	disconnected := make(chan error, 2)
	clientID := "hygrostat-" + uuid.NewString()[:8]
	client := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		OnClientError: func(err error) {
			select {
			case disconnected <- err:
			default:
			}
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			select {
			case disconnected <- fmt.Errorf("mqtt subscribe: server disconnect: reason %d", d.ReasonCode):
			default:
			}
		},
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){s.onPublish},
	})

	if _, err := client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		CleanStart: true,
		KeepAlive:  s.cfg.KeepAlive,
	}); err != nil {
		_ = conn.Close()
		return false, err
	}
	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.cfg.Topic, QoS: s.cfg.QoS}},
	}); err != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return false, err
	}

	metrics.SetTransportConnected(true)
	s.logger.Printf("mqtt subscribe: connected client=%s topic=%s", clientID, s.cfg.Topic)

	select {
	case <-ctx.Done():
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return true, ctx.Err()
	case err := <-disconnected:
		return true, err
	}
}

func (s *Subscriber) onPublish(pb paho.PublishReceived) (bool, error) {
	metrics.IncTransportMessage()
	msg := Message{
		Topic:      pb.Packet.Topic,
		Payload:    append([]byte(nil), pb.Packet.Payload...),
		ReceivedAt: time.Now().UTC(),
	}
	select {
	case s.queue <- msg:
	default:
		metrics.IncTransportDropped("queue_full")
	}
	return true, nil
}

func (s *Subscriber) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			s.handler(msg)
		}
	}
}

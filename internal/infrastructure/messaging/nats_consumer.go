package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConsumer handles NATS JetStream consumption of parsed transfer events
type NATSConsumer struct {
	conn      *nats.Conn
	js        nats.JetStreamContext
	sub       *nats.Subscription
	config    *config.NATSConfig
	logger    *logger.Logger
	msgChan   chan *Delivery
	isRunning atomic.Bool
	done      chan struct{}

	// mu guards msgChan against sends after Disconnect closed it
	mu     sync.RWMutex
	closed bool
}

// Delivery is the decoded content of one message. The consumer of the channel
// acks it once the events are stored, or naks it so JetStream redelivers the
// message. Only the first Ack or Nak takes effect.
type Delivery struct {
	Events []*entity.TransferEvent

	ack  func()
	nak  func()
	once sync.Once
}

// NewDelivery wraps events with their settle callbacks. Nil callbacks do nothing.
func NewDelivery(events []*entity.TransferEvent, ack, nak func()) *Delivery {
	return &Delivery{Events: events, ack: ack, nak: nak}
}

// Ack confirms the message
func (d *Delivery) Ack() { d.settle(d.ack) }

// Nak asks for redelivery of the message
func (d *Delivery) Nak() { d.settle(d.nak) }

func (d *Delivery) settle(fn func()) {
	d.once.Do(func() {
		if fn != nil {
			fn()
		}
	})
}

// NewNATSConsumer creates a new NATS consumer
func NewNATSConsumer(cfg *config.NATSConfig, logger *logger.Logger) *NATSConsumer {
	return &NATSConsumer{
		config:  cfg,
		logger:  logger.WithComponent("nats-consumer"),
		msgChan: make(chan *Delivery, cfg.MaxPendingMessages),
		done:    make(chan struct{}),
	}
}

// Subject returns the subject transfer events are published on
func (n *NATSConsumer) Subject() string {
	return fmt.Sprintf("%s.transfers", n.config.SubjectPrefix)
}

// Connect connects to NATS server and sets up consumer
func (n *NATSConsumer) Connect(ctx context.Context) error {
	if !n.config.Enabled {
		n.logger.Info("NATS is disabled, skipping connection")
		return nil
	}

	conn, err := Dial(n.config, n.logger)
	if err != nil {
		return err
	}
	n.conn = conn

	// Try JetStream first, if not available fall back to core NATS
	js, err := conn.JetStream(nats.Context(ctx))
	if err != nil {
		n.logger.Warn("JetStream not available, using core NATS", zap.Error(err))
		return n.setupCoreNATSSubscription()
	}

	n.js = js
	return n.setupJetStreamSubscription()
}

// Dial opens a NATS connection with the configured reconnect policy
func Dial(cfg *config.NATSConfig, log *logger.Logger) (*nats.Conn, error) {
	log.Info("Connecting to NATS server", zap.String("url", cfg.URL))

	opts := []nats.Option{
		nats.Name("wallet-cluster-analyzer"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectDelay),
		nats.MaxReconnects(cfg.ReconnectAttempts),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		log.Error("Failed to connect to NATS", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// setupJetStreamSubscription binds a pull subscription to the durable consumer
func (n *NATSConsumer) setupJetStreamSubscription() error {
	subject := n.Subject()
	durable := n.config.ConsumerGroup

	n.logger.Info("Setting up JetStream subscription",
		zap.String("subject", subject),
		zap.String("stream", n.config.StreamName),
		zap.String("consumer", durable))

	sub, err := n.js.PullSubscribe(subject, durable, nats.BindStream(n.config.StreamName))
	if err != nil {
		n.logger.Warn("Failed to create pull subscription, falling back to core NATS", zap.Error(err))
		n.js = nil
		return n.setupCoreNATSSubscription()
	}

	n.sub = sub
	n.isRunning.Store(true)

	// Start message processing
	go n.processJetStreamMessages()

	n.logger.Info("Successfully connected to NATS JetStream",
		zap.String("subject", subject),
		zap.String("consumer", durable))

	return nil
}

// processJetStreamMessages processes messages from JetStream pull subscription
func (n *NATSConsumer) processJetStreamMessages() {
	defer close(n.done)
	n.logger.Info("Starting JetStream message processing")

	for n.isRunning.Load() {
		// Fetch messages in batches
		msgs, err := n.sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if !n.isRunning.Load() {
				break
			}
			n.logger.Error("Failed to fetch messages", zap.Error(err))
			continue
		}

		n.logger.Debug("Fetched messages from JetStream", zap.Int("count", len(msgs)))

		for _, msg := range msgs {
			n.handleMessage(msg)
		}
	}

	n.logger.Info("Stopped JetStream message processing")
}

// setupCoreNATSSubscription sets up core NATS subscription
func (n *NATSConsumer) setupCoreNATSSubscription() error {
	subject := n.Subject()
	queueGroup := n.config.ConsumerGroup

	n.logger.Info("Setting up core NATS subscription",
		zap.String("subject", subject),
		zap.String("queue_group", queueGroup))

	sub, err := n.conn.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
		n.handleMessage(msg)
	})
	if err != nil {
		n.logger.Error("Failed to subscribe to subject", zap.Error(err))
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	n.sub = sub
	n.isRunning.Store(true)
	close(n.done)

	n.logger.Info("Successfully connected to core NATS",
		zap.String("subject", subject),
		zap.String("queue_group", queueGroup))

	return nil
}

// handleMessage decodes a message and forwards it to the processing channel.
// The message is acked by whoever processes the delivery.
func (n *NATSConsumer) handleMessage(msg *nats.Msg) {
	events, err := DecodeTransfers(msg.Data)
	if err != nil {
		n.logger.Error("Failed to decode transfer message", zap.Error(err))
		// Poison messages are acknowledged so they are not redelivered forever
		n.ack(msg)
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.nak(msg)
		return
	}

	delivery := NewDelivery(events, func() { n.ack(msg) }, func() { n.nak(msg) })
	select {
	case n.msgChan <- delivery:
	default:
		// Channel is full
		n.logger.Warn("Message channel is full, requesting redelivery",
			zap.Int("events", len(events)))
		n.nak(msg)
	}
}

func (n *NATSConsumer) ack(msg *nats.Msg) {
	if n.js == nil {
		return
	}
	if err := msg.Ack(); err != nil {
		n.logger.Warn("Failed to ack message", zap.Error(err))
	}
}

func (n *NATSConsumer) nak(msg *nats.Msg) {
	if n.js == nil {
		return
	}
	if err := msg.Nak(); err != nil {
		n.logger.Warn("Failed to nak message", zap.Error(err))
	}
}

// Disconnect disconnects from NATS server and closes the message channel
func (n *NATSConsumer) Disconnect() error {
	wasRunning := n.isRunning.Swap(false)

	if n.sub != nil {
		if err := n.sub.Unsubscribe(); err != nil {
			n.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	if wasRunning {
		<-n.done
	}
	if n.conn != nil {
		if err := n.conn.Drain(); err != nil {
			n.conn.Close()
		}
		n.conn = nil
	}
	n.sub = nil

	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.msgChan)
	}
	n.mu.Unlock()
	n.logger.Info("Disconnected from NATS")
	return nil
}

// IsConnected checks if connected to NATS
func (n *NATSConsumer) IsConnected() bool {
	return n.isRunning.Load() && n.conn != nil && n.conn.IsConnected()
}

// GetMessageChannel returns the message channel
func (n *NATSConsumer) GetMessageChannel() <-chan *Delivery {
	return n.msgChan
}

// DecodeTransfers accepts a single JSON transfer event or a JSON array of them
func DecodeTransfers(data []byte) ([]*entity.TransferEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	if trimmed[0] == '[' {
		var batch []*entity.TransferEvent
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal transfer batch: %w", err)
		}
		events := make([]*entity.TransferEvent, 0, len(batch))
		for _, ev := range batch {
			if ev != nil {
				events = append(events, ev)
			}
		}
		return events, nil
	}

	var ev entity.TransferEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal transfer: %w", err)
	}
	return []*entity.TransferEvent{&ev}, nil
}

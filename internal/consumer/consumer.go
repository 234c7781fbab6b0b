package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/services"
)

const (
	reconnectDelay       = 2 * time.Second
	maxReconnectAttempts = 10
	handleTimeout        = 30 * time.Second
)

// PaymentMessage is the gateway's verdict on a pending deposit.
type PaymentMessage struct {
	TransactionID string         `json:"transaction_id"`
	Status        string         `json:"status"`
	EventID       string         `json:"event_id"`
	Details       models.Details `json:"details"`
}

// Confirmer applies a verdict to a pending transaction.
type Confirmer interface {
	Confirm(ctx context.Context, txID string, status models.TransactionStatus, details models.Details) (*models.Transaction, error)
}

type Disposition int

const (
	Ack Disposition = iota
	// Reject drops a message that can never succeed.
	Reject
	// Requeue puts the message back for another attempt.
	Requeue
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	default:
		return "requeue"
	}
}

// Handler turns one delivery body into a ledger update.
type Handler struct {
	confirm Confirmer
	log     *logrus.Logger
}

func NewHandler(confirm Confirmer, log *logrus.Logger) *Handler {
	return &Handler{confirm: confirm, log: log}
}

func (h *Handler) Handle(ctx context.Context, body []byte) Disposition {
	var msg PaymentMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.log.WithFields(logrus.Fields{
			"error": err,
			"body":  string(body),
		}).Error("failed to unmarshal message")
		return Reject
	}

	status := models.TransactionStatus(msg.Status)
	if msg.TransactionID == "" || !status.Valid() || !status.Terminal() {
		h.log.WithField("payload", msg).Error("invalid payment message")
		return Reject
	}

	details := models.Details{}
	for k, v := range msg.Details {
		details[k] = v
	}
	if msg.EventID != "" {
		details["event_id"] = msg.EventID
	}

	log := h.log.WithFields(logrus.Fields{
		"tx_id":    msg.TransactionID,
		"event_id": msg.EventID,
		"status":   status,
	})

	_, err := h.confirm.Confirm(ctx, msg.TransactionID, status, details)
	switch {
	case err == nil:
		log.Debug("payment message applied")
		return Ack
	case errors.Is(err, services.ErrNotPending):
		// redelivery of a verdict that already landed
		log.Debug("transaction already resolved")
		return Ack
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrInvalidRequest):
		log.WithError(err).Warn("payment message for unknown transaction")
		return Ack
	case errors.Is(err, services.ErrBackendUnavailable):
		log.WithError(err).Warn("store unavailable, requeueing")
		return Requeue
	default:
		log.WithError(err).Error("failed to apply payment message")
		return Reject
	}
}

// Consumer reads payment confirmations from RabbitMQ and hands them to a
// pool of workers.
type Consumer struct {
	cfg     config.RabbitConfig
	log     *logrus.Logger
	handler *Handler

	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.RabbitConfig, handler *Handler, log *logrus.Logger) (*Consumer, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:     cfg,
		log:     log,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := c.connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return c, nil
}

func (c *Consumer) connect() error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.log.WithField("queue", c.cfg.Queue).Info("connected to RabbitMQ")

	go c.monitorConnection(conn)
	return nil
}

func (c *Consumer) monitorConnection(conn *amqp.Connection) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case err := <-notifyClose:
		if err != nil {
			c.log.WithError(err).Error("RabbitMQ connection closed unexpectedly")
			c.reconnect()
		}
	case <-c.ctx.Done():
	}
}

func (c *Consumer) reconnect() {
	c.mu.Lock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		if err := c.connect(); err == nil {
			c.log.WithField("attempt", attempt).Info("reconnected to RabbitMQ")
			go func() {
				if err := c.Start(c.ctx); err != nil && c.ctx.Err() == nil {
					c.log.WithError(err).Error("failed to restart consumer after reconnect")
				}
			}()
			return
		}

		delay := reconnectDelay * time.Duration(attempt)
		c.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("reconnection failed, retrying")

		select {
		case <-time.After(delay):
		case <-c.ctx.Done():
			return
		}
	}

	c.log.Error("max reconnection attempts reached, giving up")
}

// Start consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()

	if channel == nil {
		return fmt.Errorf("channel is not initialized")
	}

	msgs, err := channel.Consume(
		c.cfg.Queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.log.WithField("workers", c.cfg.Workers).Info("starting consumer workers")

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		c.wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer c.wg.Done()
			c.worker(ctx, msgs, id)
		}(i)
	}

	wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, msgs <-chan amqp.Delivery, workerID int) {
	log := c.log.WithField("worker_id", workerID)
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopped")
			return
		case msg, ok := <-msgs:
			if !ok {
				log.Warn("message channel closed")
				return
			}
			c.process(ctx, msg, log)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg amqp.Delivery, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	d := c.handler.Handle(ctx, msg.Body)

	var err error
	switch d {
	case Ack:
		err = msg.Ack(false)
	case Reject:
		err = msg.Nack(false, false)
	default:
		err = msg.Nack(false, true)
	}
	if err != nil {
		log.WithError(err).WithField("disposition", d).Warn("failed to settle delivery")
	}
}

func (c *Consumer) Close() {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.log.Info("consumer closed")
}

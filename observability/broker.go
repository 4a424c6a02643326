// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/puddle/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

// BrokerChannel is the slice of broker operations the event buffer
// needs. The production implementation wraps an AMQP channel; tests
// substitute an in-memory fake.
type BrokerChannel interface {
	// DeclareQueue ensures the queue exists, is durable, and is bound
	// to the exchange under routingKey. Returns the queue's current
	// depth.
	DeclareQueue(exchange, queue, routingKey string) (int, error)

	// InspectQueue returns the depth of an existing queue without
	// creating it. A missing queue surfaces as a broker protocol
	// error with the not-found code.
	InspectQueue(queue string) (int, error)

	// Publish sends one message to the exchange under routingKey.
	Publish(ctx context.Context, exchange, routingKey string, message amqp.Publishing) error

	// Consume opens a no-ack consumer on the queue with the given
	// prefetch window. The returned channel closes when the broker
	// channel is torn down at the end of the enclosing WithChannel.
	Consume(queue string, prefetch int) (<-chan amqp.Delivery, error)
}

// Broker manages pooled connections to the message broker. It bounds
// connection acquisition with a short connect timeout and translates
// broker-client failures into this package's error kinds, so callers
// never handle amqp errors directly.
type Broker struct {
	connectTimeout time.Duration
	pool           *puddle.Pool[*amqp.Connection]
}

// NewBroker creates a Broker for the given AMQP URL. Dialing and
// pooled acquisition are both bounded by connectTimeout. maxConnections
// caps the pool.
func NewBroker(url string, connectTimeout time.Duration, maxConnections int32) (*Broker, error) {
	pool, err := puddle.NewPool(&puddle.Config[*amqp.Connection]{
		Constructor: func(ctx context.Context) (*amqp.Connection, error) {
			return amqp.DialConfig(url, amqp.Config{
				Dial: amqp.DefaultDial(connectTimeout),
			})
		},
		Destructor: func(connection *amqp.Connection) {
			connection.Close()
		},
		MaxSize: maxConnections,
	})
	if err != nil {
		return nil, err
	}
	return &Broker{connectTimeout: connectTimeout, pool: pool}, nil
}

// ConnectTimeout returns the bound on connection acquisition. The
// buffer reuses it as its publish deadline.
func (b *Broker) ConnectTimeout() time.Duration { return b.connectTimeout }

// Close tears down the pool and its connections.
func (b *Broker) Close() { b.pool.Close() }

// WithChannel acquires a pooled connection, opens a channel, runs fn,
// and releases the connection on every exit path. Acquisition is
// bounded by the connect timeout. Errors from acquiring or opening the
// channel are classified into ConnectionError or ProtocolError; errors
// from fn pass through untouched. A connection found dead is discarded
// from the pool instead of being released back.
func (b *Broker) WithChannel(ctx context.Context, fn func(BrokerChannel) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, b.connectTimeout)
	resource, err := b.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return &ConnectionError{Err: err}
	}

	connection := resource.Value()
	if connection.IsClosed() {
		resource.Destroy()
		return &ConnectionError{Err: amqp.ErrClosed}
	}

	channel, err := connection.Channel()
	if err != nil {
		resource.Destroy()
		return classifyBrokerError(err)
	}

	fnErr := fn(&amqpChannel{channel: channel})
	channel.Close()
	if connection.IsClosed() {
		resource.Destroy()
	} else {
		resource.Release()
	}
	return fnErr
}

// classifyBrokerError maps a broker-client failure to this package's
// error kinds: AMQP protocol exceptions become ProtocolError (except
// the client's closed sentinel, which is a transport condition), and
// everything else — dial failures, timeouts, socket errors — becomes
// ConnectionError.
func classifyBrokerError(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return &ConnectionError{Err: err}
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return &ProtocolError{Err: err}
	}
	return &ConnectionError{Err: err}
}

// isQueueNotFound reports whether err is the broker's not-found reply
// to a passive queue inspection.
func isQueueNotFound(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound
}

// amqpChannel implements BrokerChannel over a live AMQP channel.
type amqpChannel struct {
	channel *amqp.Channel
}

func (c *amqpChannel) DeclareQueue(exchange, queue, routingKey string) (int, error) {
	if err := c.channel.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return 0, err
	}
	declared, err := c.channel.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return 0, err
	}
	if err := c.channel.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return 0, err
	}
	return declared.Messages, nil
}

func (c *amqpChannel) InspectQueue(queue string) (int, error) {
	declared, err := c.channel.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		return 0, err
	}
	return declared.Messages, nil
}

func (c *amqpChannel) Publish(ctx context.Context, exchange, routingKey string, message amqp.Publishing) error {
	return c.channel.PublishWithContext(ctx, exchange, routingKey, false, false, message)
}

func (c *amqpChannel) Consume(queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}
	// autoAck: messages are gone once delivered to this consumer, by
	// contract of the buffer's drain semantics.
	return c.channel.Consume(queue, "", true, false, false, false, nil)
}

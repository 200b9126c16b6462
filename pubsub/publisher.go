// Package pubsub fans normalized conversation events out over AMQP for
// downstream consumers, primarily the comment automation engine.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/goliatone/go-channels/core"
)

const (
	DefaultExchange = "channels.events"

	RoutingKeyMessageObserved = "channels.message.observed"
	RoutingKeyComment         = "channels.comment.created"
)

// Meta is the envelope header every published event carries.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Channel is the slice of amqp091.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	channel  Channel
	exchange string
	appID    string
	now      func() time.Time
	newID    func() string
}

var _ core.EventPublisher = (*Publisher)(nil)

type Config struct {
	Channel  Channel
	Exchange string
	AppID    string
	Now      func() time.Time
	NewID    func() string
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Channel == nil {
		return nil, fmt.Errorf("pubsub: amqp channel is required")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = DefaultExchange
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Publisher{
		channel:  cfg.Channel,
		exchange: exchange,
		appID:    strings.TrimSpace(cfg.AppID),
		now:      now,
		newID:    newID,
	}, nil
}

func (p *Publisher) PublishObservedMessage(ctx context.Context, msg core.ObservedMessage) error {
	return p.publish(ctx, RoutingKeyMessageObserved, msg.NativeID, msg)
}

func (p *Publisher) PublishComment(ctx context.Context, event core.CommentEvent) error {
	return p.publish(ctx, RoutingKeyComment, event.CommentID, event)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, correlationID string, data any) error {
	if p == nil || p.channel == nil {
		return fmt.Errorf("pubsub: publisher is not configured")
	}
	envelope := Envelope{
		Meta: Meta{
			ID:            p.newID(),
			CorrelationID: strings.TrimSpace(correlationID),
			Type:          routingKey,
			Time:          p.now(),
		},
		Data: data,
	}
	if envelope.Meta.CorrelationID == "" {
		envelope.Meta.CorrelationID = envelope.Meta.ID
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("pubsub: marshal envelope: %w", err)
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     envelope.Meta.ID,
		CorrelationId: envelope.Meta.CorrelationID,
		Type:          envelope.Meta.Type,
		Timestamp:     envelope.Meta.Time,
		AppId:         p.appID,
	})
	if err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", routingKey, err)
	}
	return nil
}

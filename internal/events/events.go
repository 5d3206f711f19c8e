// Package events publishes fuel-up changes to the message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boatfuel/fueltracker/internal/mq"
	"github.com/boatfuel/fueltracker/types"
	"github.com/shopspring/decimal"
)

const (
	TypeFuelUpCreated = "fuelup.created"
	TypeFuelUpDeleted = "fuelup.deleted"

	attrType   = "type"
	attrUserID = "user_id"
)

// FuelUpEvent is the wire payload of a fuel-up change.
type FuelUpEvent struct {
	Type           string              `json:"type"`
	FuelUpID       int64               `json:"fuel_up_id"`
	UserID         string              `json:"user_id"`
	Date           string              `json:"date"`
	Gallons        decimal.NullDecimal `json:"gallons"`
	PricePerGallon decimal.NullDecimal `json:"price_per_gallon"`
	TotalCost      decimal.NullDecimal `json:"total_cost"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

// Broker is the subset of mq.MQ used here.
type Broker interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Recorder observes publish outcomes.
type Recorder interface {
	EventPublished(eventType string, err error)
}

// Publisher sends fuel-up events to a single channel.
type Publisher struct {
	broker   Broker
	channel  string
	recorder Recorder
	now      func() time.Time
}

func NewPublisher(broker Broker, channel string, recorder Recorder) *Publisher {
	return &Publisher{
		broker:   broker,
		channel:  channel,
		recorder: recorder,
		now:      time.Now,
	}
}

func (p *Publisher) FuelUpCreated(ctx context.Context, f types.FuelUp) error {
	return p.publish(ctx, newEvent(TypeFuelUpCreated, f, p.now()))
}

func (p *Publisher) FuelUpDeleted(ctx context.Context, f types.FuelUp) error {
	return p.publish(ctx, newEvent(TypeFuelUpDeleted, f, p.now()))
}

func (p *Publisher) publish(ctx context.Context, event FuelUpEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	_, err = p.broker.Publish(ctx, p.channel, data, map[string]string{
		attrType:   event.Type,
		attrUserID: event.UserID,
	})
	if p.recorder != nil {
		p.recorder.EventPublished(event.Type, err)
	}
	if err != nil {
		return fmt.Errorf("publish %s event for fuel-up %d: %w", event.Type, event.FuelUpID, err)
	}
	return nil
}

// Consume delivers decoded events from channel to handle until ctx ends.
// Undecodable messages are acknowledged and dropped.
func Consume(ctx context.Context, broker Broker, channel string, handle func(ctx context.Context, event FuelUpEvent) error) error {
	return broker.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		var event FuelUpEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		return handle(ctx, event)
	})
}

func newEvent(eventType string, f types.FuelUp, now time.Time) FuelUpEvent {
	event := FuelUpEvent{
		Type:           eventType,
		FuelUpID:       f.ID,
		UserID:         f.UserID,
		Gallons:        f.Gallons(),
		PricePerGallon: f.PricePerGallon(),
		TotalCost:      f.TotalCost(),
		OccurredAt:     now.UTC(),
	}
	if !f.Date.IsZero() {
		event.Date = f.Date.Format(types.DateLayout)
	}
	return event
}

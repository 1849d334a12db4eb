package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"trace-service/internal/models"
	"trace-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishItemTransition publishes an ItemTransition event, keyed by token so
// one item's transitions stay ordered within a partition.
func (ep *EventPublisher) PublishItemTransition(ctx context.Context, event *models.ItemTransitionEvent) error {
	key := fmt.Sprintf("item-%d", event.TokenID)
	if err := ep.producer.PublishEvent(ctx, key, event); err != nil {
		return err
	}
	util.TransitionsPublishedTotal.Inc()
	return nil
}

// PublishUserRegistered publishes a UserRegistered event
func (ep *EventPublisher) PublishUserRegistered(ctx context.Context, event *models.UserRegisteredEvent) error {
	key := fmt.Sprintf("user-%s", event.Address)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onItemTransition func(context.Context, *models.ItemTransitionEvent) error
	onUserRegistered func(context.Context, *models.UserRegisteredEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnItemTransition registers a handler for ItemTransition events
func (eh *EventHandler) OnItemTransition(handler func(context.Context, *models.ItemTransitionEvent) error) {
	eh.onItemTransition = handler
}

// OnUserRegistered registers a handler for UserRegistered events
func (eh *EventHandler) OnUserRegistered(handler func(context.Context, *models.UserRegisteredEvent) error) {
	eh.onUserRegistered = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeItemTransition:
		if eh.onItemTransition != nil {
			var event models.ItemTransitionEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ItemTransition event: %w", err)
			}
			return eh.onItemTransition(ctx, &event)
		}

	case models.EventTypeUserRegistered:
		if eh.onUserRegistered != nil {
			var event models.UserRegisteredEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal UserRegistered event: %w", err)
			}
			return eh.onUserRegistered(ctx, &event)
		}

	default:
		util.GetLogger().Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}

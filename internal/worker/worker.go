package worker

import (
	"context"
	"time"

	"trace-service/internal/broker"
	"trace-service/internal/chain"
	"trace-service/internal/models"
	"trace-service/internal/store"
	"trace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransitionWorker bridges the ledger's transition log onto the broker: it
// holds one wildcard subscription and publishes every observed transition.
type TransitionWorker struct {
	client    chain.Client
	publisher *broker.EventPublisher
	logger    *zap.Logger

	sub    chain.Subscription
	events chan models.EventRecord
}

// NewTransitionWorker creates a new transition worker
func NewTransitionWorker(client chain.Client, publisher *broker.EventPublisher) *TransitionWorker {
	return &TransitionWorker{
		client:    client,
		publisher: publisher,
		logger:    util.GetLogger(),
		events:    make(chan models.EventRecord, 64),
	}
}

// Start subscribes to the full transition log and publishes until ctx ends.
func (w *TransitionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting transition worker")

	sub, err := w.client.SubscribeEvents(ctx, chain.EventFilter{}, w.events)
	if err != nil {
		return err
	}
	w.sub = sub

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			w.logger.Error("Transition subscription failed", zap.Error(err))
			return err
		case rec := <-w.events:
			event := &models.ItemTransitionEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeItemTransition,
					Timestamp: time.Now(),
				},
				TokenID:     rec.TokenID,
				From:        rec.From,
				State:       uint8(rec.State),
				StateLabel:  rec.State.Label(),
				BlockNumber: rec.BlockNumber,
				LogIndex:    rec.LogIndex,
				TxHash:      rec.TxHash,
				BlockTime:   rec.BlockTime,
			}
			if err := w.publisher.PublishItemTransition(ctx, event); err != nil {
				w.logger.Error("Failed to publish transition",
					zap.Uint64("token_id", rec.TokenID),
					zap.Error(err))
			}
		}
	}
}

// Stop releases the subscription.
func (w *TransitionWorker) Stop() {
	w.logger.Info("Stopping transition worker")
	if w.sub != nil {
		w.sub.Unsubscribe()
	}
}

// AuditWorker consumes transition events from the broker and mirrors them
// into the audit tables, deduplicating by event id.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	logger       *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, st *store.Store) *AuditWorker {
	w := &AuditWorker{
		consumer: consumer,
		store:    st,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnItemTransition(w.handleItemTransition)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting audit worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	w.logger.Info("Stopping audit worker")
	return w.consumer.Close()
}

func (w *AuditWorker) handleItemTransition(ctx context.Context, event *models.ItemTransitionEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Debug("Skipping already processed event", zap.String("event_id", event.EventID))
		return nil
	}

	rec := &models.EventRecord{
		From:        event.From,
		TokenID:     event.TokenID,
		State:       models.LifecycleState(event.State),
		BlockNumber: event.BlockNumber,
		LogIndex:    event.LogIndex,
		TxHash:      event.TxHash,
		BlockTime:   event.BlockTime,
	}
	if err := w.store.InsertEventRecord(ctx, rec); err != nil {
		return err
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID); err != nil {
		return err
	}

	util.TransitionsAuditedTotal.Inc()
	w.logger.Info("Audited item transition",
		zap.Uint64("token_id", event.TokenID),
		zap.Uint8("state", event.State))
	return nil
}

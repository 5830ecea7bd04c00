package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	"github.com/jinhwansong/konnect-back-sub000/pkg/events"
	"github.com/jinhwansong/konnect-back-sub000/pkg/jobs"
)

// Event outcomes recorded by the dispatcher.
const (
	EventOutcomePublished = "published"
	EventOutcomeFailed    = "failed"
	EventOutcomeDropped   = "dropped"
)

// EventEmitter accepts reservation events after the transition they describe
// has been committed. Emit never blocks and never fails the caller.
type EventEmitter interface {
	Emit(ctx context.Context, event models.Event)
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, models.Event) {}

func newReservationEvent(eventType models.EventType, reservationID string, attrs map[string]string) models.Event {
	return models.Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		ReservationID: reservationID,
		OccurredAt:    time.Now().UTC(),
		Attributes:    attrs,
	}
}

// EventSink is one downstream consumer of reservation events.
type EventSink interface {
	Name() string
	Handle(ctx context.Context, event models.Event) error
}

type sinkDelivery struct {
	sink  string
	event models.Event
}

// EventDispatcher fans events out to sinks through a background worker pool.
// Each sink is retried on its own so a failing broker does not hold back
// room provisioning.
type EventDispatcher struct {
	queue   *jobs.Queue
	sinks   map[string]EventSink
	order   []string
	metrics *MetricsService
	logger  *zap.Logger
}

// EventDispatcherConfig tunes the dispatcher's worker pool.
type EventDispatcherConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// NewEventDispatcher wires sinks behind a job queue. Call Start before Emit.
func NewEventDispatcher(cfg EventDispatcherConfig, metrics *MetricsService, logger *zap.Logger, sinks ...EventSink) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &EventDispatcher{
		sinks:   make(map[string]EventSink, len(sinks)),
		metrics: metrics,
		logger:  logger,
	}
	for _, sink := range sinks {
		d.Register(sink)
	}
	d.queue = jobs.NewQueue("reservation-events", d.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnGiveUp:   d.giveUp,
	})
	return d
}

// Register adds a sink. It must be called before Start; a second sink with
// the same name is ignored.
func (d *EventDispatcher) Register(sink EventSink) {
	if sink == nil {
		return
	}
	if _, dup := d.sinks[sink.Name()]; dup {
		return
	}
	d.sinks[sink.Name()] = sink
	d.order = append(d.order, sink.Name())
}

// Start launches the workers.
func (d *EventDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Pending reports deliveries still waiting for a worker.
func (d *EventDispatcher) Pending() int {
	return d.queue.Len()
}

// Stop waits for in-flight deliveries to finish.
func (d *EventDispatcher) Stop() {
	d.queue.Stop()
}

// Emit schedules event for every sink. A full or stopped queue drops the
// delivery and counts it.
func (d *EventDispatcher) Emit(_ context.Context, event models.Event) {
	for _, name := range d.order {
		err := d.queue.TryEnqueue(jobs.Job{
			ID:      fmt.Sprintf("%s:%s", event.ID, name),
			Type:    name,
			Payload: sinkDelivery{sink: name, event: event},
		})
		if err != nil {
			d.metrics.RecordEvent(event.Type, EventOutcomeDropped)
			d.logger.Warn("reservation event dropped",
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)),
				zap.String("sink", name),
				zap.Error(err),
			)
		}
	}
}

func (d *EventDispatcher) deliver(ctx context.Context, job jobs.Job) error {
	delivery, ok := job.Payload.(sinkDelivery)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", job.Payload)
	}
	sink, ok := d.sinks[delivery.sink]
	if !ok {
		return fmt.Errorf("unknown event sink %q", delivery.sink)
	}
	if err := sink.Handle(ctx, delivery.event); err != nil {
		return fmt.Errorf("%s: %w", delivery.sink, err)
	}
	d.metrics.RecordEvent(delivery.event.Type, EventOutcomePublished)
	return nil
}

func (d *EventDispatcher) giveUp(job jobs.Job, err error) {
	delivery, ok := job.Payload.(sinkDelivery)
	if !ok {
		return
	}
	d.metrics.RecordEvent(delivery.event.Type, EventOutcomeFailed)
	d.logger.Error("reservation event delivery abandoned",
		zap.String("event_id", delivery.event.ID),
		zap.String("reservation_id", delivery.event.ReservationID),
		zap.String("sink", delivery.sink),
		zap.Error(err),
	)
}

// PublisherSink forwards events to a message broker using the event type as
// routing key.
type PublisherSink struct {
	publisher events.Publisher
}

// NewPublisherSink wraps publisher as an EventSink.
func NewPublisherSink(publisher events.Publisher) *PublisherSink {
	return &PublisherSink{publisher: publisher}
}

// Name implements EventSink.
func (s *PublisherSink) Name() string { return "broker" }

// Handle implements EventSink.
func (s *PublisherSink) Handle(ctx context.Context, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.publisher.Publish(ctx, string(event.Type), body)
}

// LogSink writes every event to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Handle(_ context.Context, event models.Event) error {
	s.logger.Info("reservation event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("reservation_id", event.ReservationID),
		zap.Any("attributes", event.Attributes),
	)
	return nil
}

// Package kafka publishes applied scene snapshots to a Kafka topic for
// downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/observability"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	defaultQueueSize   = 64
	defaultMaxAttempts = 5
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// SceneEvent is the message value written for each applied snapshot.
type SceneEvent struct {
	Snapshot domain.Snapshot   `json:"snapshot"`
	Scene    domain.SceneState `json:"scene"`
	Critical bool              `json:"critical"`
}

// Publisher queues applied snapshots and writes them to Kafka from a single
// run loop, so a slow broker never blocks the simulation coordinator.
type Publisher struct {
	writer  messageWriter
	queue   chan domain.Snapshot
	logger  *slog.Logger
	metrics *observability.Metrics

	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewPublisher creates a Kafka producer for the scene topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newPublisher(w, logger, metrics)
}

func newPublisher(w messageWriter, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		writer:         w,
		queue:          make(chan domain.Snapshot, defaultQueueSize),
		logger:         logger,
		metrics:        metrics,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     5 * time.Second,
	}
}

// OnSnapshot enqueues snap. When the queue is full the snapshot is dropped.
func (p *Publisher) OnSnapshot(_ context.Context, snap domain.Snapshot) {
	select {
	case p.queue <- snap:
	default:
		p.metrics.ScenesDropped.Inc()
		p.logger.Warn("scene queue full, dropping snapshot", "seq", snap.Seq)
	}
}

// Run drains the queue until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("scene publisher started")
	p.metrics.PublisherRunning.Set(1)
	defer p.metrics.PublisherRunning.Set(0)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("scene publisher stopping", "reason", ctx.Err())
			return nil
		case snap := <-p.queue:
			p.publish(ctx, snap)
		}
	}
}

// publish writes one snapshot, backing off between failed attempts.
func (p *Publisher) publish(ctx context.Context, snap domain.Snapshot) {
	msg, err := serializeToMessage(snap)
	if err != nil {
		p.metrics.ScenesDropped.Inc()
		p.logger.Error("serialize scene failed", "seq", snap.Seq, "error", err)
		return
	}

	backoff := p.initialBackoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			p.metrics.ScenesPublished.Inc()
			p.logger.Debug("scene published", "seq", snap.Seq, "location", snap.Inputs.Location)
			return
		}

		p.metrics.ScenePublishErrors.Inc()
		p.logger.Error("publish scene failed", "seq", snap.Seq, "attempt", attempt, "error", err)
		if ctx.Err() != nil || !sharedretry.SleepWithContext(ctx, backoff) {
			return
		}
		backoff = sharedretry.NextBackoff(backoff, p.maxBackoff)
	}

	p.metrics.ScenesDropped.Inc()
	p.logger.Warn("giving up on scene", "seq", snap.Seq, "attempts", p.maxAttempts)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a snapshot into a Kafka message keyed by
// location, so updates for one place stay ordered on a partition.
func serializeToMessage(snap domain.Snapshot) (kafkago.Message, error) {
	scene := snap.Scene()
	data, err := json.Marshal(SceneEvent{Snapshot: snap, Scene: scene, Critical: scene.Critical()})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize scene snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(snap.Inputs.Location),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "seq", Value: []byte(strconv.FormatUint(snap.Seq, 10))},
			{Key: "source", Value: []byte(snap.Source)},
			{Key: "applied_at", Value: []byte(snap.AppliedAt.Format(time.RFC3339))},
		},
	}, nil
}

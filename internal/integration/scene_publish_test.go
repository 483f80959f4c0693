//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/adapter/kafka"
	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/narrative"
	"github.com/couchcryptid/flood-atlas-service/internal/observability"
	"github.com/couchcryptid/flood-atlas-service/internal/simulation"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// publishedScene holds a deserialized message read from the scene topic.
type publishedScene struct {
	Event   kafka.SceneEvent
	Key     string
	Headers map[string]string
}

func readScene(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedScene {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from scene topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event kafka.SceneEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal scene message")

	return publishedScene{Event: event, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker, topic string) *kafkago.Reader {
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestCoordinatorPublishesScene runs an offline simulation end to end: the
// coordinator applies a fallback snapshot and the publisher writes it to Kafka.
func TestCoordinatorPublishesScene(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	const topic = "test-scenes"
	createTopic(t, broker, topic)

	metrics := observability.NewMetricsForTesting()
	publisher := kafka.NewPublisher([]string{broker}, topic, discardLogger(), metrics)
	t.Cleanup(func() { _ = publisher.Close() })

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- publisher.Run(runCtx) }()

	enricher := narrative.NewService(nil, time.Second, discardLogger(), metrics)
	builder := simulation.NewSnapshotBuilder(domain.DefaultProjectionParams(), enricher, nil, discardLogger(), metrics)
	coord := simulation.New(builder, 50*time.Millisecond, nil, discardLogger(), metrics)
	coord.Subscribe(publisher)
	t.Cleanup(coord.Close)

	snap, err := coord.RunNow(ctx, domain.SimulationInputs{Year: 2050, Location: "New York, USA"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, snap.Source)

	scene := readScene(ctx, t, newConsumer(t, broker, topic))
	assert.Equal(t, "New York, USA", scene.Key)
	assert.Equal(t, "fallback", scene.Headers["source"])
	assert.Equal(t, fmt.Sprint(snap.Seq), scene.Headers["seq"])
	_, err = time.Parse(time.RFC3339, scene.Headers["applied_at"])
	assert.NoError(t, err, "applied_at should be valid RFC3339")

	assert.InDelta(t, 0.30, scene.Event.Scene.RiseMeters, 1e-9)
	assert.False(t, scene.Event.Critical)
	assert.Contains(t, scene.Event.Snapshot.Climate.Narrative, "New York, USA")
	assert.Contains(t, scene.Event.Snapshot.Climate.Narrative, "0.30m")

	stop()
	require.NoError(t, <-done)
}

// TestPublisherPreservesPerLocationOrder publishes several snapshots for one
// location and reads them back in sequence order.
func TestPublisherPreservesPerLocationOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	const topic = "test-scene-order"
	createTopic(t, broker, topic)

	publisher := kafka.NewPublisher([]string{broker}, topic, discardLogger(), observability.NewMetricsForTesting())
	t.Cleanup(func() { _ = publisher.Close() })

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = publisher.Run(runCtx) }()

	for seq := uint64(1); seq <= 3; seq++ {
		publisher.OnSnapshot(ctx, domain.Snapshot{
			Seq:       seq,
			Inputs:    domain.SimulationInputs{Year: 2040 + int(seq), Location: "Mumbai, India"},
			Rise:      float64(seq) / 10,
			Source:    domain.SourceRemote,
			AppliedAt: time.Now().UTC(),
		})
	}

	consumer := newConsumer(t, broker, topic)
	for want := uint64(1); want <= 3; want++ {
		scene := readScene(ctx, t, consumer)
		assert.Equal(t, want, scene.Event.Snapshot.Seq)
		assert.Equal(t, "Mumbai, India", scene.Key)
	}
}

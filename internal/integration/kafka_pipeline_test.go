//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/atei-etl/internal/adapter/kafka"
	"github.com/couchcryptid/atei-etl/internal/adapter/terrain"
	"github.com/couchcryptid/atei-etl/internal/config"
	"github.com/couchcryptid/atei-etl/internal/domain"
	"github.com/couchcryptid/atei-etl/internal/observability"
	"github.com/couchcryptid/atei-etl/internal/pipeline"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

// resultMessage holds a deserialized message read from the sink topic.
type resultMessage struct {
	Result  jobResult
	Key     string
	Headers map[string]string
}

type jobResult struct {
	JobID     string             `json:"job_id"`
	Statistic string             `json:"statistic"`
	Zones     []domain.ZoneScore `json:"zones"`
	Features  struct {
		Features []struct {
			ID         any            `json:"id"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	} `json:"features"`
}

// readResult reads a single message from the sink consumer and deserializes it.
func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) resultMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var res jobResult
	require.NoError(t, json.Unmarshal(msg.Value, &res), "unmarshal sink message")

	return resultMessage{Result: res, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:         []string{broker},
		KafkaSourceTopic:     testSourceTopic,
		KafkaSinkTopic:       testSinkTopic,
		KafkaGroupID:         fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		KafkaMaxMessageBytes: 10 << 20,
		BatchFlushInterval:   5 * time.Second,
	}
}

func newProcessor(t *testing.T, terrainURL string, metrics *observability.Metrics) *pipeline.JobProcessor {
	t.Helper()
	client := terrain.NewClient(terrainURL, 5*time.Second, metrics, discardLogger())
	engine, err := pipeline.NewEngine(terrain.NewCachedProvider(client, 64, metrics), pipeline.EngineConfig{
		Tables:  domain.DefaultTables(),
		Weights: domain.DefaultWeights(),
	}, discardLogger(), metrics)
	require.NoError(t, err)
	return pipeline.NewJobProcessor(engine, domain.JobDefaults{}, discardLogger())
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor) and
// kafka.Writer (Loader) correctly round-trip a job through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	payload := loadMockJob(t)
	producer := &kafkago.Writer{
		Addr:       kafkago.TCP(broker),
		Topic:      testSourceTopic,
		BatchBytes: 10 << 20,
	}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("sample-ridge"), Value: payload}))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawJob
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("sample-ridge"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	proc := newProcessor(t, startTerrain(t), observability.NewMetricsForTesting())
	event, err := proc.Process(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{event}))

	rm := readResult(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "sample-ridge", rm.Key)
	assert.Equal(t, "sample-ridge", rm.Headers["job_id"])
	assert.Equal(t, "mean", rm.Headers["statistic"])
	assert.Equal(t, "1", rm.Headers["zones_failed"])
	_, err = time.Parse(time.RFC3339, rm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	require.Len(t, rm.Result.Zones, 4)
	assert.Equal(t, "upper-bowl", rm.Result.Zones[0].ZoneID)
	require.NotNil(t, rm.Result.Zones[0].Value)
	assert.InDelta(t, 3.0, *rm.Result.Zones[0].Value, 1e-9)
	require.Len(t, rm.Result.Features.Features, 4)
	assert.InDelta(t, 3.0, rm.Result.Features.Features[0].Properties["atei"], 1e-9)
}

// TestPipelineEndToEnd wires the full pipeline (Reader → JobProcessor → Writer)
// with real Kafka and a stub terrain service.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	// The same job under three keys with different statistics.
	sample := loadMockJob(t)
	producer := &kafkago.Writer{
		Addr:       kafkago.TCP(broker),
		Topic:      testSourceTopic,
		BatchBytes: 10 << 20,
	}
	t.Cleanup(func() { _ = producer.Close() })

	jobs := map[string]string{"job-mean": "mean", "job-majority": "majority", "job-default": ""}
	msgs := make([]kafkago.Message, 0, len(jobs))
	for id, stat := range jobs {
		var payload map[string]any
		require.NoError(t, json.Unmarshal(sample, &payload))
		payload["id"] = id
		if stat == "" {
			delete(payload, "statistic")
		} else {
			payload["statistic"] = stat
		}
		value, err := json.Marshal(payload)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(id), Value: value})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	metrics := observability.NewMetricsForTesting()
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(reader, newProcessor(t, startTerrain(t), metrics), writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := make(map[string]resultMessage, len(jobs))
	for len(received) < len(jobs) {
		rm := readResult(ctx, t, consumer)
		received[rm.Key] = rm
	}

	pipelineCancel()
	require.NoError(t, <-errCh)
	require.NoError(t, p.CheckReadiness(ctx))

	assert.Equal(t, "mean", received["job-mean"].Result.Statistic)
	assert.Equal(t, "majority", received["job-majority"].Result.Statistic)
	assert.Equal(t, "majority", received["job-default"].Result.Statistic)

	for id, rm := range received {
		require.Len(t, rm.Result.Zones, 4, id)
		assert.Equal(t, "1", rm.Headers["zones_failed"], id)
		for _, z := range rm.Result.Zones {
			if z.ZoneID == "summit-cairn" {
				assert.Equal(t, domain.ZoneFailed, z.Status, id)
				assert.Equal(t, domain.StagePending, z.Stage, id)
				continue
			}
			assert.Equal(t, domain.ZoneDone, z.Status, "%s/%s", id, z.ZoneID)
		}
	}

	// Majority over lower-slope: forest rows outnumber the grassland row.
	for _, z := range received["job-majority"].Result.Zones {
		if z.ZoneID == "lower-slope" {
			require.NotNil(t, z.Value)
			assert.InDelta(t, 2.5, *z.Value, 1e-9)
		}
	}
}

// TestPipelineSkipsUnprocessableJob verifies that an invalid message (poison
// pill) is skipped and the pipeline continues processing valid messages.
func TestPipelineSkipsUnprocessableJob(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	producer := &kafkago.Writer{
		Addr:       kafkago.TCP(broker),
		Topic:      testSourceTopic,
		BatchBytes: 10 << 20,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("no-grids"), Value: []byte(`{"id":"no-grids","zones":{"type":"FeatureCollection","features":[]}}`)},
		kafkago.Message{Key: []byte("good"), Value: loadMockJob(t)},
	))

	metrics := observability.NewMetricsForTesting()
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(reader, newProcessor(t, startTerrain(t), metrics), writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	rm := readResult(ctx, t, consumer)
	assert.Equal(t, "sample-ridge", rm.Result.JobID)

	// Verify no second message arrives (the poison pills were skipped).
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"DocQA/backend/go/internal/rag_service/rag/schema"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesReport(t *testing.T) {
	w := &fakeWriter{}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &KafkaPublisher{writer: w, now: func() time.Time { return now }}

	report := &schema.IngestReport{
		RunID: "run-7", IndexName: "docs", RecordsUpserted: 12,
		Failures: []schema.DocumentFailure{{SourcePath: "b.pdf", LastChunk: 3, Kind: schema.FailureEmbed, Err: errors.New("timeout")}},
	}
	require.NoError(t, p.PublishReport(context.Background(), report))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "docs", string(msg.Key))
	assert.Equal(t, []kafka.Header{
		{Key: "type", Value: []byte(TypeIngestCompleted)},
		{Key: "run_id", Value: []byte("run-7")},
	}, msg.Headers)

	var ev struct {
		Type       string    `json:"type"`
		OccurredAt time.Time `json:"occurred_at"`
		Report     struct {
			RunID           string `json:"run_id"`
			RecordsUpserted int    `json:"records_upserted"`
		} `json:"report"`
		Failures []Failure `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, TypeIngestCompleted, ev.Type)
	assert.True(t, now.Equal(ev.OccurredAt))
	assert.Equal(t, 12, ev.Report.RecordsUpserted)
	assert.Equal(t, []Failure{{SourcePath: "b.pdf", LastChunk: 3, Kind: "embed", Error: "timeout"}}, ev.Failures)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, now: time.Now}
	err := p.PublishReport(context.Background(), &schema.IngestReport{IndexName: "docs"})
	assert.ErrorContains(t, err, "broker down")
}

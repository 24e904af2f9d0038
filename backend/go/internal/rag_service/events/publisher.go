// Package events publishes the outcome of ingestion runs for other systems
// to consume.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"DocQA/backend/go/internal/rag_service/rag/schema"

	"github.com/segmentio/kafka-go"
)

// TypeIngestCompleted is the type of the event sent after every ingestion run,
// including runs with per-document failures.
const TypeIngestCompleted = "ingest.completed"

// Publisher sends ingestion reports somewhere.
type Publisher interface {
	PublishReport(ctx context.Context, report *schema.IngestReport) error
	Close() error
}

// Failure is a DocumentFailure with its error as text.
type Failure struct {
	SourcePath string `json:"source_path"`
	FirstChunk int    `json:"first_chunk"`
	LastChunk  int    `json:"last_chunk"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
}

// ReportEvent is the message body.
type ReportEvent struct {
	Type       string               `json:"type"`
	OccurredAt time.Time            `json:"occurred_at"`
	Report     *schema.IngestReport `json:"report"`
	Failures   []Failure            `json:"failures,omitempty"`
}

// NewReportEvent wraps report in an event.
func NewReportEvent(report *schema.IngestReport, now time.Time) ReportEvent {
	ev := ReportEvent{Type: TypeIngestCompleted, OccurredAt: now.UTC(), Report: report}
	for _, f := range report.Failures {
		fe := Failure{SourcePath: f.SourcePath, FirstChunk: f.FirstChunk, LastChunk: f.LastChunk, Kind: string(f.Kind)}
		if f.Err != nil {
			fe.Error = f.Err.Error()
		}
		ev.Failures = append(ev.Failures, fe)
	}
	return ev
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per report, keyed by the index name so
// the reports of one index stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

func (p *KafkaPublisher) PublishReport(ctx context.Context, report *schema.IngestReport) error {
	value, err := json.Marshal(NewReportEvent(report, p.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal ingest report: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(report.IndexName),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeIngestCompleted)},
			{Key: "run_id", Value: []byte(report.RunID)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close 关闭底层的 writer 连接。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)

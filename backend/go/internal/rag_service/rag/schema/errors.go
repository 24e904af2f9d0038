package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks invalid or missing configuration. Not retryable.
	ErrConfiguration = errors.New("configuration error")
	// ErrProviderUnavailable marks a failed or timed-out call to the embedder,
	// the vector index or the generator. The caller may retry.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrIntegrity marks inconsistent data such as an embedding count mismatch.
	// It is fatal for the affected document or batch only.
	ErrIntegrity = errors.New("integrity error")
	// ErrReadinessTimeout is returned when a new index does not become ready in time.
	ErrReadinessTimeout = errors.New("index did not become ready")
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrIndexNotFound is returned by a vector store for an unknown index name.
	ErrIndexNotFound = errors.New("index not found")
)

// ConfigError names the offending setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// ProviderError records which operation failed against which entity
// (index name, model name).
type ProviderError struct {
	Op     string
	Entity string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider unavailable: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProviderUnavailable }

// IntegrityError describes inconsistent data for one document.
type IntegrityError struct {
	SourcePath string
	Reason     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s: %s", e.SourcePath, e.Reason)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// BatchSegment is the run of consecutive records of one document inside a batch.
type BatchSegment struct {
	SourcePath string
	FirstChunk int
	LastChunk  int
}

func (s BatchSegment) String() string {
	return fmt.Sprintf("%s[%d-%d]", s.SourcePath, s.FirstChunk, s.LastChunk)
}

// BatchError is returned when an upsert batch was rejected as a whole.
type BatchError struct {
	IndexName string
	Segments  []BatchSegment
	Err       error
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Segments))
	for i, s := range e.Segments {
		parts[i] = s.String()
	}
	return fmt.Sprintf("upsert into %s failed for %s: %v", e.IndexName, strings.Join(parts, ", "), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// SegmentsOf groups a batch's records into per-document chunk ranges, in batch order.
func SegmentsOf(records []VectorRecord) []BatchSegment {
	var segs []BatchSegment
	for _, r := range records {
		md := r.Metadata
		if n := len(segs); n > 0 && segs[n-1].SourcePath == md.SourcePath && segs[n-1].LastChunk+1 == md.SequenceIndex {
			segs[n-1].LastChunk = md.SequenceIndex
			continue
		}
		segs = append(segs, BatchSegment{SourcePath: md.SourcePath, FirstChunk: md.SequenceIndex, LastChunk: md.SequenceIndex})
	}
	return segs
}

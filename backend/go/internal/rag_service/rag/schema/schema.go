package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MetadataKeyFileName is the key for the source file's base name.
	MetadataKeyFileName = "file_name"
	// MetadataKeyPageCount is the number of pages of a PDF source.
	MetadataKeyPageCount = "page_count"
	// MetadataKeySheetNames lists the sheets of a spreadsheet source, comma separated.
	MetadataKeySheetNames = "sheet_names"
	// MetadataKeyModTime is the source file's modification time (RFC 3339).
	MetadataKeyModTime = "mod_time"
	// MetadataKeyBirthTime is the source file's creation time when the filesystem records it.
	MetadataKeyBirthTime = "birth_time"
	// MetadataKeyMimeType is the sniffed content type of the source file.
	MetadataKeyMimeType = "mime_type"
	// MetadataKeyTitle is the document title when the format carries one.
	MetadataKeyTitle = "title"
)

// Document is a loaded source file, converted to plain text.
// It is produced by a loader and not modified afterwards.
type Document struct {
	// SourcePath identifies the origin file, relative to the corpus root.
	SourcePath string

	// Content is the extracted plain text.
	Content string

	// Metadata holds loader-assigned attributes such as file_name or mod_time.
	Metadata map[string]string
}

// Location is the position of a chunk inside its parent document.
// Offsets are byte offsets into Document.Content, End exclusive; lines are 1-based.
type Location struct {
	Start    int `json:"start"`
	End      int `json:"end"`
	FromLine int `json:"from_line"`
	ToLine   int `json:"to_line"`
}

// ChunkText is a chunker result before it is attached to a document.
type ChunkText struct {
	Text     string
	Location Location
}

// Chunk is a bounded-size slice of a document's text.
type Chunk struct {
	ParentSourcePath string
	SequenceIndex    int
	Text             string
	Location         Location
	// Extra is copied from the parent document's metadata.
	Extra map[string]string
}

// ID returns the deterministic record id of the chunk.
func (c Chunk) ID() string {
	return RecordID(c.ParentSourcePath, c.SequenceIndex)
}

// RecordID derives a record id from a source path and a sequence index.
// Re-ingesting unchanged input yields the same ids, so upserts overwrite.
func RecordID(sourcePath string, seq int) string {
	return sourcePath + "_" + strconv.Itoa(seq)
}

// RecordMetadata is the typed metadata stored alongside each vector.
// SourcePath, SequenceIndex, Text and Location are the well-known keys;
// Extra is the open extension field.
type RecordMetadata struct {
	SourcePath    string            `json:"source_path"`
	SequenceIndex int               `json:"seq_index"`
	Text          string            `json:"text"`
	Location      Location          `json:"location"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// VectorRecord is one (id, vector, metadata) triple of the index.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata RecordMetadata
}

// NewVectorRecord builds the record for chunk with its embedding.
func NewVectorRecord(chunk Chunk, vector []float32) VectorRecord {
	return VectorRecord{
		ID:     chunk.ID(),
		Vector: vector,
		Metadata: RecordMetadata{
			SourcePath:    chunk.ParentSourcePath,
			SequenceIndex: chunk.SequenceIndex,
			Text:          chunk.Text,
			Location:      chunk.Location,
			Extra:         chunk.Extra,
		},
	}
}

// Metric is the distance function of an index.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dotproduct"
)

// ParseMetric accepts the usual spellings of each metric.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "cos":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "dotproduct", "dot-product", "dot", "ip":
		return MetricDotProduct, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// IndexDescriptor is fixed at creation time.
type IndexDescriptor struct {
	Name      string
	Dimension int
	Metric    Metric
}

// IndexStats is what the store reports about an index. Fields the store does
// not report are left zero; Extra carries any store-specific values verbatim.
type IndexStats struct {
	Name        string            `json:"name"`
	RecordCount int64             `json:"record_count"`
	Dimension   int               `json:"dimension,omitempty"`
	Metric      Metric            `json:"metric,omitempty"`
	Ready       bool              `json:"ready"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// QueryOptions controls a similarity query.
type QueryOptions struct {
	TopK            int
	IncludeMetadata bool
	IncludeValues   bool
}

// QueryMatch is one similarity search hit, ordered by descending similarity.
type QueryMatch struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata RecordMetadata `json:"metadata"`
	Values   []float32      `json:"values,omitempty"`
}

// Answer is the outcome of a retrieval. NoMatches is set, and Text left
// empty, when the index returned nothing for the question.
type Answer struct {
	Text      string       `json:"answer"`
	NoMatches bool         `json:"no_matches"`
	Sources   []QueryMatch `json:"sources,omitempty"`
}

// FailureKind classifies a per-document ingestion failure.
type FailureKind string

const (
	FailureLoad      FailureKind = "load"
	FailureSplit     FailureKind = "split"
	FailureEmbed     FailureKind = "embed"
	FailureIntegrity FailureKind = "integrity"
	FailureUpsert    FailureKind = "upsert"
)

// DocumentFailure identifies the records that did not reach the index,
// enough to retry them: the source path and the inclusive chunk range.
// FirstChunk and LastChunk are -1 when the failure precedes chunking.
type DocumentFailure struct {
	SourcePath string      `json:"source_path"`
	FirstChunk int         `json:"first_chunk"`
	LastChunk  int         `json:"last_chunk"`
	Kind       FailureKind `json:"kind"`
	Err        error       `json:"-"`
}

func (f DocumentFailure) String() string {
	if f.FirstChunk < 0 {
		return fmt.Sprintf("%s: %s failed: %v", f.SourcePath, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s chunks %d-%d: %s failed: %v", f.SourcePath, f.FirstChunk, f.LastChunk, f.Kind, f.Err)
}

// IngestReport summarises one ingestion run.
type IngestReport struct {
	RunID             string            `json:"run_id"`
	IndexName         string            `json:"index_name"`
	Directory         string            `json:"directory"`
	DocumentsLoaded   int               `json:"documents_loaded"`
	DocumentsIngested int               `json:"documents_ingested"`
	Skipped           []string          `json:"skipped,omitempty"`
	Chunks            int               `json:"chunks"`
	RecordsUpserted   int               `json:"records_upserted"`
	BatchSizes        []int             `json:"batch_sizes"`
	Failures          []DocumentFailure `json:"failures,omitempty"`
	StartedAt         time.Time         `json:"started_at"`
	Duration          time.Duration     `json:"duration"`
}

// Failed reports whether any document or batch failed.
func (r *IngestReport) Failed() bool {
	return len(r.Failures) > 0
}

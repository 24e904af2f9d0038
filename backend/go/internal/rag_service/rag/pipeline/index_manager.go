package pipeline

import (
	"context"
	"fmt"
	"time"

	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/pkg/logger"
)

const (
	DefaultReadyPollInterval = time.Second
	DefaultReadyMaxAttempts  = 30
)

// IndexManager owns the lifecycle of a named index.
type IndexManager struct {
	index    interfaces.VectorIndex
	interval time.Duration
	attempts int
	log      *logger.Logger
}

// IndexManagerOption configures an IndexManager.
type IndexManagerOption func(*IndexManager)

// WithReadyPolling sets how often, and how many times, readiness of a new
// index is checked before giving up.
func WithReadyPolling(interval time.Duration, attempts int) IndexManagerOption {
	return func(m *IndexManager) {
		if interval > 0 {
			m.interval = interval
		}
		if attempts > 0 {
			m.attempts = attempts
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) IndexManagerOption {
	return func(m *IndexManager) { m.log = log }
}

func NewIndexManager(index interfaces.VectorIndex, opts ...IndexManagerOption) *IndexManager {
	m := &IndexManager{
		index:    index,
		interval: DefaultReadyPollInterval,
		attempts: DefaultReadyMaxAttempts,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Exists reports whether the store lists an index with exactly this name.
func (m *IndexManager) Exists(ctx context.Context, name string) (bool, error) {
	names, err := m.index.ListIndexes(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// EnsureCreated returns true when the index already existed, and false when
// it has just been created and is ready to be populated.
//
// An existing index whose dimension or metric differs from desc is a
// configuration error; it is reported, never repaired.
func (m *IndexManager) EnsureCreated(ctx context.Context, desc schema.IndexDescriptor) (bool, error) {
	exists, err := m.Exists(ctx, desc.Name)
	if err != nil {
		return false, err
	}
	log := m.log.With("index", desc.Name)

	if exists {
		stats, err := m.index.Stats(ctx, desc.Name)
		if err != nil {
			return false, err
		}
		if err := checkDescriptor(desc, stats); err != nil {
			return false, err
		}
		log.Debug("Index already exists")
		return true, nil
	}

	log.With("dimension", desc.Dimension).With("metric", string(desc.Metric)).Info("Creating index")
	if err := m.index.CreateIndex(ctx, desc); err != nil {
		return false, err
	}
	if err := m.waitReady(ctx, desc.Name); err != nil {
		return false, err
	}
	log.Info("Index is ready")
	return false, nil
}

func checkDescriptor(desc schema.IndexDescriptor, stats schema.IndexStats) error {
	if stats.Dimension != 0 && stats.Dimension != desc.Dimension {
		return &schema.ConfigError{
			Field:  "index.dimension",
			Reason: fmt.Sprintf("index %s has dimension %d, configured %d", desc.Name, stats.Dimension, desc.Dimension),
		}
	}
	if stats.Metric != "" && desc.Metric != "" && stats.Metric != desc.Metric {
		return &schema.ConfigError{
			Field:  "index.metric",
			Reason: fmt.Sprintf("index %s uses %s, configured %s", desc.Name, stats.Metric, desc.Metric),
		}
	}
	return nil
}

// waitReady polls IndexReady at most m.attempts times.
func (m *IndexManager) waitReady(ctx context.Context, name string) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for attempt := 1; attempt <= m.attempts; attempt++ {
		ready, err := m.index.IndexReady(ctx, name)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if attempt == m.attempts {
			break
		}
		timer.Reset(m.interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &schema.ProviderError{
		Op:     "wait_ready",
		Entity: name,
		Err:    fmt.Errorf("%w after %d attempts", schema.ErrReadinessTimeout, m.attempts),
	}
}

// Describe returns the statistics reported by the store.
func (m *IndexManager) Describe(ctx context.Context, name string) (schema.IndexStats, error) {
	return m.index.Stats(ctx, name)
}

// Delete removes every record of the index but keeps the index. There is no undo.
func (m *IndexManager) Delete(ctx context.Context, name string) error {
	if err := m.index.DeleteAllRecords(ctx, name); err != nil {
		return err
	}
	m.log.With("index", name).Warn("Deleted all records")
	return nil
}

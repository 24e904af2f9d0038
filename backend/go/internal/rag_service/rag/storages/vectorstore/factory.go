package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/internal/database/milvus"
	"DocQA/backend/go/internal/rag_service/rag/interfaces"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/pkg/logger"
)

// Open connects the configured backend. The returned close function releases
// its connection and is never nil.
func Open(ctx context.Context, backend string, cfg *config.MilvusConfig, log *logger.Logger) (interfaces.VectorIndex, func() error, error) {
	switch strings.ToLower(backend) {
	case "memory":
		log.Warn("Using the in-memory vector index; records are lost on exit")
		return NewMemoryIndex(), func() error { return nil }, nil
	case "milvus":
		c, err := milvus.NewClient(ctx, cfg, log)
		if err != nil {
			return nil, nil, &schema.ProviderError{Op: "connect", Entity: cfg.Address, Err: err}
		}
		idx, err := NewMilvusIndex(c, log)
		if err != nil {
			_ = c.Close()
			return nil, nil, err
		}
		return idx, c.Close, nil
	default:
		return nil, nil, &schema.ConfigError{Field: "vector.backend", Reason: fmt.Sprintf("unknown backend %q", backend)}
	}
}

package storage

import (
	"context"
	"time"

	"github.com/dshills/hybridrank/pkg/types"
)

// ContentStore is the read side consumed by the ranking pipeline
type ContentStore interface {
	// SearchByEmbedding returns nodes ordered by cosine similarity, best first
	SearchByEmbedding(ctx context.Context, vector []float32, query EmbeddingQuery) ([]types.ScoredNode, error)
	// SearchByKeyword returns nodes ordered by normalized BM25 relevance, best first
	SearchByKeyword(ctx context.Context, text string, query KeywordQuery) ([]types.ScoredNode, error)

	GetNode(ctx context.Context, nodeID int64) (*types.Node, error)
	GetNodeByHash(ctx context.Context, contentHash [32]byte) (*types.Node, error)
	GetParent(ctx context.Context, nodeID int64) (*types.Node, error)

	// GetEmbeddings resolves stored vectors by node ID. IDs without an
	// embedding are absent from the returned map.
	GetEmbeddings(ctx context.Context, nodeIDs []int64) (map[int64][]float32, error)
}

// Writer persists nodes and their embeddings
type Writer interface {
	UpsertNode(ctx context.Context, node *types.Node) error
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	DeleteNode(ctx context.Context, nodeID int64) error
}

// Storage is the full store used by the indexer and the server
type Storage interface {
	ContentStore
	Writer

	GetStatus(ctx context.Context) (*Status, error)

	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Writer
	Commit() error
	Rollback() error
}

// Filters narrow both candidate queries
type Filters struct {
	SourceType     string
	HierarchyLevel *int
	ThreadRootID   *int64
}

// EmbeddingQuery configures SearchByEmbedding
type EmbeddingQuery struct {
	Limit     int
	Threshold float64 // Minimum cosine similarity, applied when > 0
	Filters
}

// KeywordQuery configures SearchByKeyword
type KeywordQuery struct {
	Limit       int
	SearchTitle bool // Match titles as well as bodies
	Filters
}

// Embedding is a stored vector for a node
type Embedding struct {
	NodeID    int64
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// Status contains statistics about the store
type Status struct {
	SchemaVersion   string
	BuildMode       string
	NodesCount      int
	EmbeddingsCount int
	SourceTypes     map[string]int
	IndexSizeMB     float64
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}

package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridrank/internal/embedder"
	"github.com/dshills/hybridrank/internal/storage"
	"github.com/dshills/hybridrank/pkg/types"
)

// ErrIndexInProgress is returned when another Index call holds the lock
var ErrIndexInProgress = errors.New("indexing already in progress")

// Indexer coordinates ingestion: dedupe -> embed -> store
type Indexer struct {
	storage  storage.Storage
	embedder embedder.Embedder // nil stores nodes without embeddings
	logger   zerolog.Logger
	lock     IndexLock
}

// Config contains configuration for one indexing run
type Config struct {
	Workers   int // Concurrent embedding batches (default: runtime.NumCPU())
	BatchSize int // Nodes per embedding call and per transaction (default: 20)
}

// NodeInput is one content unit to ingest. Key and ParentKey link a child
// to a parent earlier in the same call; ParentID links to a stored node.
type NodeInput struct {
	Key            string
	ParentKey      string
	ParentID       *int64
	ThreadRootID   *int64
	Title          string
	Text           string
	SourceType     string
	HierarchyLevel int
	QualityScore   *float64
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	NodesIndexed      int
	NodesSkipped      int
	NodesFailed       int
	EmbeddingsCreated int
	Duration          time.Duration
	NodeIDs           []int64 // Per input; 0 when the input failed
	ErrorMessages     []string
}

// New creates a new Indexer instance
func New(store storage.Storage, emb embedder.Embedder, logger zerolog.Logger) *Indexer {
	return &Indexer{
		storage:  store,
		embedder: emb,
		logger:   logger.With().Str("component", "indexer").Logger(),
	}
}

// pending tracks one input through the run
type pending struct {
	input    NodeInput
	node     *types.Node
	existing bool // content already stored
	needsEmb bool
	dupOf    *pending // same text earlier in this call
	vector   *embedder.Embedding
	err      error
}

// Index ingests inputs. Inputs whose text is already stored are skipped,
// apart from embedding them if their embedding is missing. A failure on
// one input is recorded and the run continues; store errors abort it.
func (idx *Indexer) Index(ctx context.Context, inputs []NodeInput, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	startTime := time.Now()
	stats := &Statistics{
		NodeIDs:       make([]int64, len(inputs)),
		ErrorMessages: make([]string, 0),
	}

	items, err := idx.prepare(ctx, inputs)
	if err != nil {
		return nil, err
	}

	if err := idx.embed(ctx, items, workers, batchSize); err != nil {
		return nil, err
	}

	if err := idx.write(ctx, items, batchSize, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info().
		Int("indexed", stats.NodesIndexed).
		Int("skipped", stats.NodesSkipped).
		Int("failed", stats.NodesFailed).
		Int("embeddings", stats.EmbeddingsCreated).
		Dur("duration", stats.Duration).
		Msg("indexing complete")
	return stats, nil
}

// prepare validates inputs and looks up already-stored content
func (idx *Indexer) prepare(ctx context.Context, inputs []NodeInput) ([]*pending, error) {
	items := make([]*pending, len(inputs))
	seen := make(map[[32]byte]*pending, len(inputs))
	var existingIDs []int64

	for i, in := range inputs {
		node := &types.Node{
			Title:          in.Title,
			Text:           in.Text,
			WordCount:      types.CountWords(in.Text),
			SourceType:     in.SourceType,
			HierarchyLevel: in.HierarchyLevel,
			ParentID:       in.ParentID,
			ThreadRootID:   in.ThreadRootID,
			QualityScore:   in.QualityScore,
			ContentHash:    types.ComputeContentHash(in.Text),
		}
		item := &pending{input: in, node: node}
		items[i] = item

		if err := node.Validate(); err != nil {
			item.err = err
			continue
		}
		if first, ok := seen[node.ContentHash]; ok {
			item.dupOf = first
			continue
		}
		seen[node.ContentHash] = item

		stored, err := idx.storage.GetNodeByHash(ctx, node.ContentHash)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			item.needsEmb = idx.embedder != nil
		case err != nil:
			return nil, fmt.Errorf("failed to check content hash: %w", err)
		default:
			item.existing = true
			item.node = stored
			existingIDs = append(existingIDs, stored.ID)
		}
	}

	if len(existingIDs) == 0 || idx.embedder == nil {
		return items, nil
	}

	// Stored nodes from an earlier run whose embedding call failed
	embedded, err := idx.storage.GetEmbeddings(ctx, existingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	for _, item := range items {
		if item.existing {
			_, ok := embedded[item.node.ID]
			item.needsEmb = !ok
		}
	}
	return items, nil
}

// embed generates embeddings batch by batch with bounded concurrency. A
// failed batch leaves its nodes without embeddings; they are retried on
// the next run.
func (idx *Indexer) embed(ctx context.Context, items []*pending, workers, batchSize int) error {
	var todo []*pending
	for _, item := range items {
		if item.err == nil && item.needsEmb {
			todo = append(todo, item)
		}
	}
	if len(todo) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(todo); start += batchSize {
		end := start + batchSize
		if end > len(todo) {
			end = len(todo)
		}
		batch := todo[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, item := range batch {
				texts[i] = item.node.Text
			}

			embeddings, err := idx.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				idx.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("embedding batch failed")
				return nil
			}
			for i, item := range batch {
				item.vector = embeddings[i]
			}
			return nil
		})
	}

	return g.Wait()
}

// write stores nodes and embeddings in input order, one transaction per
// batch, so parents are stored before the children that reference them
func (idx *Indexer) write(ctx context.Context, items []*pending, batchSize int, stats *Statistics) error {
	keys := make(map[string]int64)

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		tx, err := idx.storage.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		for i := start; i < end; i++ {
			item := items[i]
			if item.dupOf != nil {
				item.node = item.dupOf.node
				item.err = item.dupOf.err
				if item.err == nil {
					stats.NodesSkipped++
				}
			} else if item.err == nil {
				item.err = idx.writeOne(ctx, tx, item, keys, stats)
			}
			if item.err != nil {
				stats.NodesFailed++
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("input %d: %v", i, item.err))
				continue
			}

			stats.NodeIDs[i] = item.node.ID
			if item.input.Key != "" {
				keys[item.input.Key] = item.node.ID
			}
		}

		if err := tx.Commit(); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}
	return nil
}

func (idx *Indexer) writeOne(ctx context.Context, tx storage.Tx, item *pending, keys map[string]int64, stats *Statistics) error {
	if item.input.ParentKey != "" {
		parentID, ok := keys[item.input.ParentKey]
		if !ok {
			return fmt.Errorf("unknown parent key %q", item.input.ParentKey)
		}
		item.node.ParentID = &parentID
	}

	if !item.existing {
		if err := tx.UpsertNode(ctx, item.node); err != nil {
			return err
		}
	}

	if item.vector != nil {
		err := tx.UpsertEmbedding(ctx, &storage.Embedding{
			NodeID:    item.node.ID,
			Vector:    item.vector.Vector,
			Dimension: item.vector.Dimension,
			Provider:  item.vector.Provider,
			Model:     item.vector.Model,
		})
		if err != nil {
			return err
		}
		stats.EmbeddingsCreated++
	}

	if item.existing {
		stats.NodesSkipped++
	} else {
		stats.NodesIndexed++
	}
	return nil
}

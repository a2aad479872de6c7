package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/hybridrank/internal/vecmath"
	"github.com/dshills/hybridrank/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidEmbedding is returned for an empty or mis-sized vector
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// maxQueryParams keeps IN lists under SQLite's bound-parameter limit
const maxQueryParams = 500

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; also keeps a :memory: database on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens (or creates) the database at dbPath and migrates it
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new write transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) UpsertNode(ctx context.Context, node *types.Node) error {
	return upsertNode(ctx, t.tx, node)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return upsertEmbedding(ctx, t.tx, embedding)
}

func (t *sqliteTx) DeleteNode(ctx context.Context, nodeID int64) error {
	return deleteNode(ctx, t.tx, nodeID)
}

// Node operations

const nodeColumns = `n.id, n.content_hash, n.title, n.body, n.word_count, n.source_type,
	n.hierarchy_level, n.parent_id, n.thread_root_id, n.quality_score, n.created_at`

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanNode reads nodeColumns followed by any extra destinations
func scanNode(row scanner, extra ...interface{}) (*types.Node, error) {
	var (
		node         types.Node
		hash         []byte
		parentID     sql.NullInt64
		threadRootID sql.NullInt64
		qualityScore sql.NullFloat64
	)
	dest := []interface{}{
		&node.ID, &hash, &node.Title, &node.Text, &node.WordCount, &node.SourceType,
		&node.HierarchyLevel, &parentID, &threadRootID, &qualityScore, &node.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	copy(node.ContentHash[:], hash)
	if parentID.Valid {
		node.ParentID = &parentID.Int64
	}
	if threadRootID.Valid {
		node.ThreadRootID = &threadRootID.Int64
	}
	if qualityScore.Valid {
		node.QualityScore = &qualityScore.Float64
	}
	return &node, nil
}

// upsertNode inserts a node or updates the node with the same content hash.
// A zero content hash or word count is derived from the text.
func upsertNode(ctx context.Context, q querier, node *types.Node) error {
	if err := node.Validate(); err != nil {
		return err
	}
	if node.ContentHash == ([32]byte{}) {
		node.ContentHash = types.ComputeContentHash(node.Text)
	}
	if node.WordCount == 0 {
		node.WordCount = types.CountWords(node.Text)
	}

	query := `
		INSERT INTO nodes (
			content_hash, title, body, word_count, source_type, hierarchy_level,
			parent_id, thread_root_id, quality_score, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash)
		DO UPDATE SET
			title = excluded.title,
			word_count = excluded.word_count,
			source_type = excluded.source_type,
			hierarchy_level = excluded.hierarchy_level,
			parent_id = excluded.parent_id,
			thread_root_id = excluded.thread_root_id,
			quality_score = excluded.quality_score,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	err := q.QueryRowContext(ctx, query,
		node.ContentHash[:], node.Title, node.Text, node.WordCount, node.SourceType,
		node.HierarchyLevel, nullableInt64(node.ParentID), nullableInt64(node.ThreadRootID),
		nullableFloat64(node.QualityScore), node.CreatedAt, now,
	).Scan(&node.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert node: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertNode(ctx context.Context, node *types.Node) error {
	return upsertNode(ctx, s.db, node)
}

func getNode(ctx context.Context, q querier, where string, arg interface{}) (*types.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes n WHERE ` + where
	node, err := scanNode(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *SQLiteStorage) GetNode(ctx context.Context, nodeID int64) (*types.Node, error) {
	return getNode(ctx, s.db, "n.id = ?", nodeID)
}

func (s *SQLiteStorage) GetNodeByHash(ctx context.Context, contentHash [32]byte) (*types.Node, error) {
	return getNode(ctx, s.db, "n.content_hash = ?", contentHash[:])
}

// GetParent returns the parent of nodeID. ErrNotFound covers both a root
// node and a parent reference that no longer resolves.
func (s *SQLiteStorage) GetParent(ctx context.Context, nodeID int64) (*types.Node, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes c
		INNER JOIN nodes n ON n.id = c.parent_id
		WHERE c.id = ?
	`
	node, err := scanNode(s.db.QueryRowContext(ctx, query, nodeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get parent of node %d: %w", nodeID, err)
	}
	return node, nil
}

func deleteNode(ctx context.Context, q querier, nodeID int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete node %d: %w", nodeID, err)
	}
	n, err := result.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteNode(ctx context.Context, nodeID int64) error {
	return deleteNode(ctx, s.db, nodeID)
}

// Embedding operations

func upsertEmbedding(ctx context.Context, q querier, embedding *Embedding) error {
	if len(embedding.Vector) == 0 {
		return ErrInvalidEmbedding
	}
	if embedding.Dimension == 0 {
		embedding.Dimension = len(embedding.Vector)
	}
	if embedding.Dimension != len(embedding.Vector) {
		return fmt.Errorf("%w: dimension %d, vector length %d",
			ErrInvalidEmbedding, embedding.Dimension, len(embedding.Vector))
	}

	query := `
		INSERT INTO embeddings (node_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		embedding.NodeID, vecmath.Serialize(embedding.Vector), embedding.Dimension,
		embedding.Provider, embedding.Model, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return upsertEmbedding(ctx, s.db, embedding)
}

func (s *SQLiteStorage) GetEmbeddings(ctx context.Context, nodeIDs []int64) (map[int64][]float32, error) {
	out := make(map[int64][]float32, len(nodeIDs))

	for start := 0; start < len(nodeIDs); start += maxQueryParams {
		end := start + maxQueryParams
		if end > len(nodeIDs) {
			end = len(nodeIDs)
		}
		batch := nodeIDs[start:end]

		args := make([]interface{}, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := `SELECT node_id, vector FROM embeddings WHERE node_id IN (` + placeholders(len(batch)) + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query embeddings: %w", err)
		}
		for rows.Next() {
			var id int64
			var blob []byte
			if err := rows.Scan(&id, &blob); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[id] = vecmath.Deserialize(blob)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Search operations

func (s *SQLiteStorage) SearchByEmbedding(ctx context.Context, vector []float32, query EmbeddingQuery) ([]types.ScoredNode, error) {
	if len(vector) == 0 {
		return nil, ErrInvalidEmbedding
	}
	if query.Limit <= 0 {
		return []types.ScoredNode{}, nil
	}
	return searchVector(ctx, s.db, vector, query)
}

func (s *SQLiteStorage) SearchByKeyword(ctx context.Context, text string, query KeywordQuery) ([]types.ScoredNode, error) {
	if query.Limit <= 0 {
		return []types.ScoredNode{}, nil
	}
	return searchText(ctx, s.db, text, query)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		BuildMode:   BuildMode,
		SourceTypes: make(map[string]int),
	}

	version, err := schemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes").Scan(&status.NodesCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&status.EmbeddingsCount); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT source_type, COUNT(*) FROM nodes GROUP BY source_type")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var sourceType string
		var count int
		if err := rows.Scan(&sourceType, &count); err != nil {
			return nil, err
		}
		status.SourceTypes[sourceType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FTSIndexesBuilt:     true, // created by migrations
	}

	return status, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat64(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

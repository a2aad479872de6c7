package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/hybridrank/internal/config"
	"github.com/dshills/hybridrank/internal/embedder"
	"github.com/dshills/hybridrank/internal/indexer"
	"github.com/dshills/hybridrank/internal/metrics"
	"github.com/dshills/hybridrank/internal/pipeline"
	"github.com/dshills/hybridrank/internal/searcher"
	"github.com/dshills/hybridrank/internal/session"
	"github.com/dshills/hybridrank/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "hybridrank"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *metrics.Recorder
	storage  storage.Storage
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	pipeline *pipeline.Pipeline
	sessions *session.Manager
}

// NewServer creates a new MCP server instance. The recorder may be nil.
func NewServer(cfg *config.Config, logger zerolog.Logger, rec *metrics.Recorder) (*Server, error) {
	dbFile, err := cfg.ResolvedDBPath()
	if err != nil {
		return nil, err
	}
	if dbFile != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// One embedder, shared by indexer and searcher so both see the same cache
	emb, err := embedder.New(cfg.Embedder())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	srch, err := searcher.NewSearcher(store, emb, logger, searcher.Options{
		CacheSize: cfg.SearchCacheSize,
		Metrics:   rec,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pipe, err := pipeline.New(srch, store, logger, rec)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		cfg:      cfg,
		logger:   logger.With().Str("component", "mcp").Logger(),
		metrics:  rec,
		storage:  store,
		embedder: emb,
		indexer:  indexer.New(store, emb, logger),
		searcher: srch,
		pipeline: pipe,
		sessions: session.NewManager(pipe, store),
	}

	s.registerTools()

	s.logger.Info().
		Str("db", dbFile).
		Str("build_mode", storage.BuildMode).
		Str("embedder", emb.Provider()).
		Str("model", emb.Model()).
		Int("dimension", emb.Dimension()).
		Msg("server initialized")

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Close releases the embedder and the store
func (s *Server) Close() error {
	_ = s.embedder.Close()
	return s.storage.Close()
}

// PruneSessions drops sessions idle for longer than the configured timeout
func (s *Server) PruneSessions() int {
	return s.sessions.Prune(s.cfg.SessionIdleTimeout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexContentTool(), s.handleIndexContent)
	s.mcp.AddTool(hybridSearchTool(), s.handleHybridSearch)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)

	s.mcp.AddTool(createSessionTool(), s.handleCreateSession)
	s.mcp.AddTool(markAnchorTool(), s.handleMarkAnchor)
	s.mcp.AddTool(removeAnchorTool(), s.handleRemoveAnchor)
	s.mcp.AddTool(harvestTool(), s.handleHarvest)
	s.mcp.AddTool(getSessionTool(), s.handleGetSession)
}

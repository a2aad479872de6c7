// Package storage provides the SQLite-backed content store that feeds the
// ranking pipeline with dense and sparse candidates.
//
// The storage layer manages:
//   - Content units (nodes) with their hierarchy and thread links
//   - Vector embeddings per node
//   - A full-text search index over node titles and bodies
//
// # Database Schema
//
// Tables:
//   - nodes: content hash (unique), title, body, word count, source type,
//     hierarchy level, parent and thread root references, optional quality score
//   - nodes_fts: FTS5 index over title and body, kept in sync by triggers
//   - embeddings: one float32 vector per node, little-endian BLOB
//   - schema_version: applied migrations, compared as semantic versions
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("hybridrank.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	node := &types.Node{Title: "Intro", Text: "...", SourceType: "article"}
//	if err := store.UpsertNode(ctx, node); err != nil {
//	    return err
//	}
//
//	hits, err := store.SearchByKeyword(ctx, "vector search", storage.KeywordQuery{Limit: 30})
//
// # Transactions
//
// Writes that must land together go through BeginTx:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.UpsertNode(ctx, node); err != nil {
//	    return err
//	}
//	if err := tx.UpsertEmbedding(ctx, &storage.Embedding{NodeID: node.ID, Vector: vec}); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Search
//
// SearchByEmbedding scores nodes by cosine similarity. Purego builds compute
// it in Go over every stored vector of the query's dimension; builds with the
// sqlite_vec tag push it into SQL through vec_distance_cosine.
//
// SearchByKeyword runs an FTS5 MATCH where every query word is quoted and
// OR-ed, then maps bm25() into [0, 1) with |bm25|/(1+|bm25|). Only the body
// column is matched unless SearchTitle is set.
//
// Both searches accept the same filters: source type, hierarchy level and
// thread root.
//
// # Build Modes
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...   # mattn/go-sqlite3
//	CGO_ENABLED=0 go build -tags purego ./...              # modernc.org/sqlite
package storage

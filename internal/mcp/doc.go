// Package mcp implements the Model Context Protocol (MCP) server for hybridrank.
//
// The server exposes the ranking pipeline as tools:
//   - index_content: Store content units and their embeddings
//   - hybrid_search: Fused dense + sparse search with refinement, reranking and a quality gate
//   - get_status: Index statistics and health
//
// and a set of session tools for the find -> refine -> harvest loop:
//   - create_session, get_session
//   - mark_anchor, remove_anchor
//   - harvest_results
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries the protocol, so all logging goes to stderr.
//
// # Tool: index_content
//
//	{
//	  "name": "index_content",
//	  "arguments": {
//	    "items": [
//	      {"key": "q1", "title": "Pool exhaustion", "text": "...", "source_type": "forum"},
//	      {"parent_key": "q1", "text": "...", "hierarchy_level": 1}
//	    ]
//	  }
//	}
//
// Items whose text is already stored are skipped. A successful run purges the
// query cache.
//
// # Tool: hybrid_search
//
//	{
//	  "name": "hybrid_search",
//	  "arguments": {
//	    "query": "connection pool exhausted",
//	    "limit": 10,
//	    "mode": "hybrid",
//	    "filters": {"source_type": "forum"},
//	    "reranker": "diversity",
//	    "quality": {"min_word_count": 20, "expand_context": true},
//	    "session_id": "...",
//	    "refine": {"threshold": 0.8, "mode": "exclude", "on_missing": "keep", "min_results": 3}
//	  }
//	}
//
// With session_id the session's anchors refine the results, and the results
// become the candidates for mark_anchor and harvest_results. The optional
// refine object tunes that pass; it has no effect without anchors.
//
// # Error Codes
//
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32002: Indexing in progress
//   - -32004: Neither query nor vector given
//   - -32005: Session not found
//   - -32006: Node has no embedding to anchor on
package mcp

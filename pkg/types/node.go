package types

import (
	"crypto/sha256"
	"strings"
	"time"
)

// Node is an immutable, already-stored content unit owned by the content store.
// The ranking pipeline only ever reads it.
type Node struct {
	ID             int64
	ContentHash    [32]byte
	Title          string
	Text           string
	WordCount      int
	SourceType     string
	HierarchyLevel int
	ParentID       *int64   // Nullable - root nodes have no parent
	ThreadRootID   *int64   // Nullable
	QualityScore   *float64 // Nullable - not every source scores its content
	Embedding      []float32
	CreatedAt      time.Time
}

// ScoredNode is a raw hit returned by the content store
type ScoredNode struct {
	Node  *Node
	Score float64
}

// Validate checks if the node is valid
func (n *Node) Validate() error {
	if n.Text == "" {
		return ErrEmptyContent
	}
	if n.WordCount < 0 {
		return ErrInvalidWordCount
	}
	if n.HierarchyLevel < 0 {
		return ErrInvalidHierarchyLevel
	}
	return nil
}

// HasEmbedding reports whether the node carries its embedding inline
func (n *Node) HasEmbedding() bool {
	return n != nil && len(n.Embedding) > 0
}

// ComputeContentHash returns the SHA-256 of the node text
func ComputeContentHash(text string) [32]byte {
	return sha256.Sum256([]byte(text))
}

// CountWords counts whitespace-separated words
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.ParentID != nil {
		v := *n.ParentID
		c.ParentID = &v
	}
	if n.ThreadRootID != nil {
		v := *n.ThreadRootID
		c.ThreadRootID = &v
	}
	if n.QualityScore != nil {
		v := *n.QualityScore
		c.QualityScore = &v
	}
	if n.Embedding != nil {
		c.Embedding = append([]float32(nil), n.Embedding...)
	}
	return &c
}

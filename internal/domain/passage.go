package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Passage is an externally extracted document block, the unit of ingestion
// input. SectionTitle and Metadata come from the extraction layer as-is.
type Passage struct {
	Text         string            `json:"text"`
	Page         int               `json:"page"`
	Category     string            `json:"category"`
	IsTable      bool              `json:"is_table"`
	SectionTitle string            `json:"section_title"`
	DocSource    string            `json:"doc_source"`
	Metadata     map[string]string `json:"metadata"`
}

// Chunk is a sentence-bounded slice of a passage, the unit stored in the
// vector index. Checksum is sha256 of the chunk text and the dedup identity.
type Chunk struct {
	Text         string
	Page         int
	Category     string
	IsTable      bool
	SectionTitle string
	DocSource    string
	Metadata     map[string]string
	Checksum     string
}

// Checksum returns the hex sha256 of text.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NewChunk builds a chunk from its parent passage with the given text slice.
func NewChunk(p Passage, text string) Chunk {
	return Chunk{
		Text:         text,
		Page:         p.Page,
		Category:     p.Category,
		IsTable:      p.IsTable,
		SectionTitle: p.SectionTitle,
		DocSource:    p.DocSource,
		Metadata:     p.Metadata,
		Checksum:     Checksum(text),
	}
}

package models

import "time"

// DocumentMetadata describes a file discovered under the documents folder.
// It is created at load time and never mutated afterwards.
type DocumentMetadata struct {
	FilePath     string
	FileName     string
	FileSize     int64
	Extension    string
	ModifiedDate time.Time
	RelativePath string
}

// Document is a loaded file with its extracted text content.
type Document struct {
	ID       string
	Metadata DocumentMetadata
	Content  string
}

// Chunk is a bounded span of document text, the unit of embedding and
// retrieval. Offset is the rune offset of the span start in the source text.
type Chunk struct {
	Index  int
	Offset int
	Text   string
}

// ProcessedDocument is a document split into ordered chunks.
type ProcessedDocument struct {
	Document
	Chunks []Chunk
}

// EmbeddedChunk is a chunk together with its embedding vector and a
// reference back to the source document. Persisted by the vector store.
type EmbeddedChunk struct {
	DocID      string
	SourceFile string
	SourceName string
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// ScoredChunk is a stored chunk returned from similarity search.
type ScoredChunk struct {
	DocID      string
	SourceFile string
	SourceName string
	ChunkIndex int
	Text       string
	Similarity float64
}

// Chat message roles accepted by the gateway.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole reports whether role is one of the accepted message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

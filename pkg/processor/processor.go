package processor

import (
	"fmt"
	"strings"

	"github.com/voss/flowrag/internal/models"
)

// ProcessorConfig controls how documents are split into chunks.
type ProcessorConfig struct {
	// ChunkSize is a soft cap in runes. A span with no separator inside it
	// is emitted whole rather than cut mid-token.
	ChunkSize int
	// ChunkOverlap is the number of runes repeated from the end of one
	// chunk at the start of the next.
	ChunkOverlap int
	// Separators is the boundary priority list, most preferred first.
	Separators []string
}

// Processor splits documents into overlapping chunks along a separator
// priority list. Every rune of the source appears in at least one chunk, and
// chunk offsets allow the source to be reconstructed by trimming the overlap
// prefix of each chunk after the first.
type Processor struct {
	config ProcessorConfig
}

// NewWithConfig creates a processor, applying defaults for unset fields.
func NewWithConfig(config ProcessorConfig) (Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
		if config.ChunkOverlap == 0 {
			config.ChunkOverlap = 200
		}
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", " "}
	}
	if config.ChunkSize < 1 {
		return Processor{}, fmt.Errorf("chunk size must be positive")
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return Processor{}, fmt.Errorf("chunk overlap must be non-negative and less than chunk size")
	}

	return Processor{config: config}, nil
}

// Process splits each document's content into chunks.
func (p *Processor) Process(docs []models.Document) ([]models.ProcessedDocument, error) {
	processed := make([]models.ProcessedDocument, 0, len(docs))

	for _, doc := range docs {
		clean := normalizeNewlines(doc.Content)
		processed = append(processed, models.ProcessedDocument{
			Document: models.Document{ID: doc.ID, Metadata: doc.Metadata, Content: clean},
			Chunks:   p.Split(clean),
		})
	}

	return processed, nil
}

// Split chunks a single text. Offsets are rune offsets into the text as
// given.
func (p *Processor) Split(text string) []models.Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []models.Chunk
	start := 0

	for start < n {
		end := start + p.config.ChunkSize
		if end >= n {
			end = n
		} else {
			end = p.cut(runes, start, end)
		}

		chunks = append(chunks, models.Chunk{
			Index:  len(chunks),
			Offset: start,
			Text:   string(runes[start:end]),
		})

		if end >= n {
			break
		}

		next := end - p.config.ChunkOverlap
		if next <= start {
			// Overlap would stall on a short chunk; move on without it.
			next = end
		}
		start = next
	}

	return chunks
}

// cut picks the chunk end boundary. It prefers the last occurrence of the
// highest-priority separator inside the window; when no separator fits, the
// window grows to the next separator (or end of text) so an unsplittable
// token is never cut in half.
func (p *Processor) cut(runes []rune, start, limit int) int {
	segment := string(runes[start:limit])

	for _, sep := range p.config.Separators {
		if sep == "" {
			continue
		}
		if i := strings.LastIndex(segment, sep); i >= 0 {
			boundary := start + len([]rune(segment[:i])) + len([]rune(sep))
			if boundary > start {
				return boundary
			}
		}
	}

	// No separator inside the window: extend to the closest one after it.
	rest := string(runes[limit:])
	best := -1
	for _, sep := range p.config.Separators {
		if sep == "" {
			continue
		}
		if i := strings.Index(rest, sep); i >= 0 {
			boundary := limit + len([]rune(rest[:i])) + len([]rune(sep))
			if best == -1 || boundary < best {
				best = boundary
			}
		}
	}
	if best == -1 {
		return len(runes)
	}
	return best
}

// Reconstruct joins chunks back into the source text by dropping each
// chunk's overlap prefix, using the recorded offsets.
func Reconstruct(chunks []models.Chunk) string {
	var b strings.Builder
	prevEnd := 0

	for i, c := range chunks {
		text := []rune(c.Text)
		if i == 0 {
			b.WriteString(c.Text)
			prevEnd = c.Offset + len(text)
			continue
		}
		skip := prevEnd - c.Offset
		if skip < 0 {
			skip = 0
		}
		if skip > len(text) {
			skip = len(text)
		}
		b.WriteString(string(text[skip:]))
		prevEnd = c.Offset + len(text)
	}

	return b.String()
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

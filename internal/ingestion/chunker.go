package ingestion

import (
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/fin-agent/backend/internal/storage/models"
)

// ChunkerConfig bounds chunk size and the character overlap carried between
// adjacent chunks of the same document field.
type ChunkerConfig struct {
	Size    int
	Overlap int
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{Size: 500, Overlap: 50}
}

// ChunkDocument splits one produced document into provenance-tagged chunks.
// Dispatch is on the union tag. Pure and deterministic: identical input and
// config yield an identical chunk sequence. Empty fields yield no chunks.
func ChunkDocument(doc models.Document, cfg ChunkerConfig) []models.Chunk {
	switch d := doc.(type) {
	case models.TechnicalDocument:
		return chunkField(d.Analysis, models.Chunk{
			Source:    models.SourceTechnical,
			Ticker:    d.Ticker,
			Frequency: d.Frequency,
		}, cfg)

	case models.FundamentalDocument:
		return chunkField(d.Analysis, models.Chunk{
			Source: models.SourceFundamental,
			Ticker: d.Ticker,
		}, cfg)

	case models.FilingDocument:
		var chunks []models.Chunk
		for _, section := range d.Sections {
			chunks = append(chunks, chunkField(section.Text, models.Chunk{
				Source:  models.SourceFiling,
				Ticker:  d.Ticker,
				Section: section.Label,
			}, cfg)...)
		}
		return chunks
	}

	return nil
}

func chunkField(text string, template models.Chunk, cfg ChunkerConfig) []models.Chunk {
	pieces := SplitText(text, cfg.Size, cfg.Overlap)
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		chunk := template
		chunk.Text = piece
		chunks = append(chunks, chunk)
	}
	return chunks
}

// SplitText breaks text into pieces of at most size characters, preferring
// paragraph boundaries, then sentence boundaries, then word boundaries, and
// hard character cuts only when a single word exceeds the budget. Adjacent
// pieces overlap by roughly overlap characters of trailing content.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" || size <= 0 {
		return nil
	}

	units := splitUnits(text, size)
	return mergeUnits(units, size, overlap)
}

// splitUnits reduces text to fragments that each fit the size budget,
// descending through boundary granularities only where needed.
func splitUnits(text string, size int) []string {
	var units []string

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if len(paragraph) <= size {
			units = append(units, paragraph)
			continue
		}

		for _, sentence := range splitSentences(paragraph) {
			if len(sentence) <= size {
				units = append(units, sentence)
				continue
			}

			for _, word := range strings.Fields(sentence) {
				if len(word) <= size {
					units = append(units, word)
					continue
				}
				for start := 0; start < len(word); start += size {
					end := start + size
					if end > len(word) {
						end = len(word)
					}
					units = append(units, word[start:end])
				}
			}
		}
	}

	return units
}

func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithTagging(false),
	)
	if err != nil {
		// Segmenter rejected the input; fall back to whitespace fields.
		return strings.Fields(text)
	}

	sentences := doc.Sentences()
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		trimmed := strings.TrimSpace(s.Text)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// mergeUnits greedily packs fragments into chunks of at most size
// characters, carrying roughly overlap trailing characters into the next
// chunk: whole trailing units when one fits the budget, a raw character
// suffix of the finished chunk otherwise.
func mergeUnits(units []string, size, overlap int) []string {
	var chunks []string
	var current []string

	for _, unit := range units {
		if joinedLen(current)+len(unit)+1 > size && len(current) > 0 {
			chunk := strings.Join(current, " ")
			chunks = append(chunks, chunk)

			// Retain a tail within the overlap budget that still leaves
			// room for the incoming unit.
			for len(current) > 0 &&
				(joinedLen(current) > overlap ||
					joinedLen(current)+len(unit)+1 > size) {
				current = current[1:]
			}

			// Every trailing unit alone was over budget. Carry a
			// character suffix of the chunk instead so adjacent chunks
			// still share boundary context.
			if len(current) == 0 {
				if tail := overlapTail(chunk, overlap, size-len(unit)-1); tail != "" {
					current = append(current, tail)
				}
			}
		}
		current = append(current, unit)
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

// overlapTail is the trailing slice of chunk carried into the next chunk,
// bounded by both the overlap budget and the room the incoming unit leaves.
func overlapTail(chunk string, overlap, room int) string {
	if overlap > room {
		overlap = room
	}
	if overlap <= 0 {
		return ""
	}
	if len(chunk) <= overlap {
		return chunk
	}
	return chunk[len(chunk)-overlap:]
}

func joinedLen(units []string) int {
	if len(units) == 0 {
		return 0
	}
	total := len(units) - 1
	for _, u := range units {
		total += len(u)
	}
	return total
}

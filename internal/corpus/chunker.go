package corpus

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ChunkerConfig holds chunking configuration
type ChunkerConfig struct {
	MaxTokens     int // Tokens per unit (default: 512)
	OverlapTokens int // Token overlap across a forced split (default: 50)
	HardMaxBytes  int // Absolute unit size cap in bytes (default: 32768)
}

// Chunker splits corpus text into retrievable units
type Chunker interface {
	// Chunk splits text from one source into units with stable ids.
	// Re-running over the same snapshot reproduces the same id sequence.
	Chunk(source, text string) ([]Unit, error)

	// CountTokens returns token count for text
	CountTokens(text string) (int, error)
}

// recursiveChunker implements line-oriented chunking with token budgets
type recursiveChunker struct {
	config   ChunkerConfig
	encoding *tiktoken.Tiktoken
}

// NewChunker creates a new chunker
func NewChunker(config ChunkerConfig) (Chunker, error) {
	if config.MaxTokens == 0 {
		config.MaxTokens = 512
	}
	if config.OverlapTokens == 0 {
		config.OverlapTokens = 50
	}
	if config.OverlapTokens < 0 {
		config.OverlapTokens = 0
	}
	if config.HardMaxBytes == 0 {
		config.HardMaxBytes = 32 * 1024
	}

	// cl100k_base matches the embedding models we target
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("get encoding: %w", err)
	}

	return &recursiveChunker{
		config:   config,
		encoding: encoding,
	}, nil
}

type span struct {
	text      string
	startLine int
	endLine   int
}

// Chunk splits text into units, respecting line boundaries up to the token
// budget. Oversized logical spans are force-split with an overlap margin;
// anything still above HardMaxBytes is truncated and flagged, never dropped.
func (c *recursiveChunker) Chunk(source, text string) ([]Unit, error) {
	lines := strings.Split(text, "\n")

	var spans []span
	var current strings.Builder
	var currentStart int
	var currentTokens int

	flush := func(endLine int) {
		if current.Len() == 0 {
			return
		}
		spans = append(spans, span{
			text:      current.String(),
			startLine: currentStart,
			endLine:   endLine,
		})
		current.Reset()
		currentTokens = 0
	}

	for lineNum, line := range lines {
		lineText := line + "\n"
		lineTokens, err := c.CountTokens(lineText)
		if err != nil {
			return nil, err
		}

		// A single line exceeding the budget is split by characters
		if lineTokens > c.config.MaxTokens {
			flush(lineNum - 1)
			spans = append(spans, c.splitLongLine(lineText, lineNum)...)
			currentStart = lineNum + 1
			continue
		}

		if currentTokens+lineTokens > c.config.MaxTokens && current.Len() > 0 {
			flush(lineNum - 1)

			if c.config.OverlapTokens > 0 {
				overlapText, overlapStart := c.overlap(lines, lineNum, currentStart)
				current.WriteString(overlapText)
				currentStart = overlapStart
				currentTokens, _ = c.CountTokens(overlapText)
			} else {
				currentStart = lineNum
			}
		}

		current.WriteString(lineText)
		currentTokens += lineTokens
	}

	flush(len(lines) - 1)

	return c.toUnits(source, spans), nil
}

// splitLongLine splits a very long line into character-based spans
func (c *recursiveChunker) splitLongLine(line string, lineNum int) []span {
	var spans []span

	// Roughly 4 characters per token
	charsPerChunk := c.config.MaxTokens * 4

	for start := 0; start < len(line); start += charsPerChunk {
		end := start + charsPerChunk
		if end > len(line) {
			end = len(line)
		}
		spans = append(spans, span{
			text:      line[start:end],
			startLine: lineNum,
			endLine:   lineNum,
		})
	}

	return spans
}

// overlap returns overlap text carried over from the previous span
func (c *recursiveChunker) overlap(lines []string, currentLineNum, spanStartLine int) (string, int) {
	tokens := 0
	startLine := currentLineNum

	for i := currentLineNum - 1; i >= spanStartLine; i-- {
		lineText := lines[i] + "\n"
		lineTokens, err := c.CountTokens(lineText)
		if err != nil || tokens+lineTokens > c.config.OverlapTokens {
			break
		}
		tokens += lineTokens
		startLine = i
	}

	if startLine == currentLineNum {
		return "", currentLineNum
	}

	var overlap strings.Builder
	for i := startLine; i < currentLineNum; i++ {
		overlap.WriteString(lines[i])
		overlap.WriteString("\n")
	}
	return overlap.String(), startLine
}

// toUnits converts spans into identified units, applying the hard size cap.
// Spans are ordered by position, so the id sequence is reproducible.
func (c *recursiveChunker) toUnits(source string, spans []span) []Unit {
	units := make([]Unit, 0, len(spans))
	for idx, s := range spans {
		text := s.text
		truncated := false
		if len(text) > c.config.HardMaxBytes {
			text = text[:c.config.HardMaxBytes]
			truncated = true
		}

		location := fmt.Sprintf("%s:%d-%d#%d", source, s.startLine, s.endLine, idx)
		metadata := map[string]string{
			"source":     source,
			"start_line": fmt.Sprintf("%d", s.startLine),
			"end_line":   fmt.Sprintf("%d", s.endLine),
		}
		if truncated {
			metadata["truncated"] = "true"
		}

		units = append(units, Unit{
			ID:       UnitID(location, text),
			Text:     text,
			Metadata: metadata,
		})
	}
	return units
}

// CountTokens returns token count for text
func (c *recursiveChunker) CountTokens(text string) (int, error) {
	tokens := c.encoding.Encode(text, nil, nil)
	return len(tokens), nil
}

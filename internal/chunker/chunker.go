// Package chunker splits raw extracted text into overlapping segments for
// whole-document embedding.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is one overlapping segment of a document.
type Chunk struct {
	Index int
	Text  string
}

// Config controls chunk sizing.
type Config struct {
	// Encoding is the tiktoken encoding used to measure text. When the
	// encoding cannot be loaded (offline), length falls back to a rune-based
	// approximation.
	Encoding string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Encoding == "" {
		c.Encoding = "cl100k_base"
	}
}

// sizing tier: chunk and overlap budgets chosen by total document length.
type tier struct {
	maxDoc  int // documents up to this many tokens use this tier; 0 = no cap
	chunk   int
	overlap int
}

// Tiers keep short documents in one segment and grow segment size with the
// document, so very large documents do not explode into thousands of points.
var tiers = []tier{
	{maxDoc: 1500, chunk: 1500, overlap: 0},
	{maxDoc: 8000, chunk: 800, overlap: 100},
	{maxDoc: 0, chunk: 1200, overlap: 150},
}

// Chunker splits text into overlapping word-aligned segments sized by the
// total token length of the document.
type Chunker struct {
	config    Config
	tokenizer *tiktoken.Tiktoken
}

// New creates a chunker. A tokenizer load failure is not fatal: the chunker
// degrades to rune-based length estimation.
func New(config Config) *Chunker {
	config.ApplyDefaults()

	c := &Chunker{config: config}
	if enc, err := tiktoken.GetEncoding(config.Encoding); err == nil {
		c.tokenizer = enc
	}
	return c
}

// length measures text in tokens, or approximates from rune count when no
// tokenizer is available (~4 runes per token, floor 1 for non-empty text).
func (c *Chunker) length(text string) int {
	if text == "" {
		return 0
	}
	if c.tokenizer != nil {
		return len(c.tokenizer.Encode(text, nil, nil))
	}
	n := utf8.RuneCountInString(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// Chunk splits text into overlapping segments. Whitespace runs are collapsed;
// segments never split words. Returns nil for empty input.
func (c *Chunker) Chunk(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	total := c.length(strings.Join(words, " "))
	t := pickTier(total)

	if total <= t.chunk {
		return []Chunk{{Index: 0, Text: strings.Join(words, " ")}}
	}

	// Accumulate words until the chunk budget is reached, then step back far
	// enough to cover the overlap budget.
	var chunks []Chunk
	start := 0
	for start < len(words) {
		end := start
		budget := 0
		for end < len(words) {
			wl := c.length(words[end])
			if budget+wl > t.chunk && end > start {
				break
			}
			budget += wl
			end++
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  strings.Join(words[start:end], " "),
		})

		if end == len(words) {
			break
		}

		next := end
		covered := 0
		for next > start+1 && covered < t.overlap {
			next--
			covered += c.length(words[next])
		}
		start = next
	}

	return chunks
}

func pickTier(total int) tier {
	for _, t := range tiers {
		if t.maxDoc == 0 || total <= t.maxDoc {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

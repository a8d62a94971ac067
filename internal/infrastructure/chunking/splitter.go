package chunking

import (
	"strings"
	"unicode/utf8"

	"github.com/avdeenko/docqa/internal/core/domain"
)

// DefaultMaxChunkBytes bounds one indexed passage. Embedding providers accept
// far smaller inputs, but the bound is on the passage, not the prompt.
const DefaultMaxChunkBytes = 40000

// separators, coarsest first. The last resort is a raw byte boundary.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

type Splitter struct{}

func NewSplitter() *Splitter {
	return &Splitter{}
}

// Chunk bounds every unit to maxSize bytes of UTF-8. Units that already fit
// pass through unchanged; oversized units are split recursively and every
// produced chunk inherits the source page. Whitespace-only units are dropped.
func (s *Splitter) Chunk(units []domain.Unit, maxSize int) []domain.Unit {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkBytes
	}
	out := make([]domain.Unit, 0, len(units))
	for _, u := range units {
		if strings.TrimSpace(u.Text) == "" {
			continue
		}
		if len(u.Text) <= maxSize {
			out = append(out, u)
			continue
		}
		for _, piece := range splitText(u.Text, maxSize) {
			out = append(out, domain.Unit{Text: piece, Page: u.Page})
		}
	}
	return out
}

// splitText breaks one oversized text on the coarsest separator that yields
// bounded pieces, adding an overlap between adjacent chunks. A panic anywhere
// in the recursion degrades to the whole text as a single chunk: losing the
// size bound beats losing the content.
func splitText(text string, maxSize int) (chunks []string) {
	defer func() {
		if recover() != nil {
			chunks = []string{text}
		}
	}()

	overlap := maxSize / 10
	if overlap < 200 {
		overlap = 200
	}
	if overlap*2 >= maxSize {
		overlap = maxSize / 4
	}

	pieces := splitBounded(text, maxSize-overlap, 0)
	return joinWithOverlap(pieces, overlap)
}

// splitBounded splits text by separators[level], greedily re-merging parts up
// to the limit and recursing into parts that stay oversized.
func splitBounded(text string, limit, level int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	if level >= len(separators) {
		return hardSplit(text, limit)
	}

	parts := strings.SplitAfter(text, separators[level])
	if len(parts) == 1 {
		return splitBounded(text, limit, level+1)
	}

	var out []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for _, part := range parts {
		if len(part) > limit {
			flush()
			out = append(out, splitBounded(part, limit, level+1)...)
			continue
		}
		if buf.Len()+len(part) > limit {
			flush()
		}
		buf.WriteString(part)
	}
	flush()
	return out
}

// hardSplit cuts at byte offsets, stepping back to the nearest rune start so
// no chunk ends inside a multi-byte codepoint.
func hardSplit(text string, limit int) []string {
	if limit <= 0 {
		limit = 1
	}
	var out []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			_, size := utf8.DecodeRuneInString(text)
			cut = size
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// joinWithOverlap prefixes each chunk after the first with the tail of its
// predecessor.
func joinWithOverlap(pieces []string, overlap int) []string {
	out := make([]string, 0, len(pieces))
	prev := ""
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if prev == "" {
			out = append(out, p)
		} else {
			out = append(out, tailBytes(prev, overlap)+p)
		}
		prev = p
	}
	return out
}

// tailBytes returns at most n trailing bytes of s, aligned to a rune start.
func tailBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

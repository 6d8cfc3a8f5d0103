// Package ingest turns course documents into embedded, searchable chunks:
// extract text, split it, embed the pieces, and store them.
package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunker splits text into pieces suitable for embedding.
type Chunker interface {
	Chunk(text string) []string
}

// ChunkerConfig holds chunk sizing parameters.
type ChunkerConfig struct {
	MaxChars     int // max characters per chunk
	OverlapChars int // characters carried over between adjacent chunks
}

// DefaultChunkerConfig returns the sizing used for syllabus documents.
// Roughly a page section per chunk, with enough overlap that a policy
// split across a boundary still matches.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{MaxChars: 1000, OverlapChars: 200}
}

// RecursiveChunker splits on paragraph boundaries first, then sentences,
// then words, merging the resulting segments back up to MaxChars with
// OverlapChars of trailing context repeated into the next chunk.
type RecursiveChunker struct {
	cfg ChunkerConfig
}

var _ Chunker = (*RecursiveChunker)(nil)

// NewRecursiveChunker creates a chunker. A zero config gets defaults.
func NewRecursiveChunker(cfg ChunkerConfig) *RecursiveChunker {
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkerConfig()
	}
	return &RecursiveChunker{cfg: cfg}
}

// Chunk splits text into overlapping chunks.
func (rc *RecursiveChunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= rc.cfg.MaxChars {
		return []string{text}
	}
	segments := rc.split(text)
	return mergeWithOverlap(segments, rc.cfg.MaxChars, rc.cfg.OverlapChars)
}

// split breaks text into segments no longer than MaxChars, preferring
// paragraph boundaries, then sentences, then raw words.
func (rc *RecursiveChunker) split(text string) []string {
	var segments []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= rc.cfg.MaxChars {
			segments = append(segments, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if len(sent) <= rc.cfg.MaxChars {
				segments = append(segments, sent)
			} else {
				segments = append(segments, splitWords(sent, rc.cfg.MaxChars)...)
			}
		}
	}
	return segments
}

// abbreviations whose trailing period is not a sentence boundary.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"vs": true, "etc": true, "e.g": true, "i.e": true,
	"dept": true, "approx": true, "no": true, "vol": true,
}

// splitSentences splits text at sentence-ending punctuation followed by
// whitespace and an uppercase letter. Decimal points and common
// abbreviations are not treated as boundaries.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if c == '.' && (isDecimalDot(text, i) || isAbbreviation(text, i)) {
			continue
		}
		j := i + 1
		for j < len(text) && (text[j] == ' ' || text[j] == '\n') {
			j++
		}
		if j == i+1 || j >= len(text) {
			continue
		}
		r, _ := utf8.DecodeRuneInString(text[j:])
		if !unicode.IsUpper(r) {
			continue
		}
		if seg := strings.TrimSpace(text[start:j]); seg != "" {
			out = append(out, seg)
		}
		start = j
	}
	if seg := strings.TrimSpace(text[start:]); seg != "" {
		out = append(out, seg)
	}
	return out
}

func isDecimalDot(text string, pos int) bool {
	return pos > 0 && pos+1 < len(text) &&
		text[pos-1] >= '0' && text[pos-1] <= '9' &&
		text[pos+1] >= '0' && text[pos+1] <= '9'
}

func isAbbreviation(text string, dotPos int) bool {
	start := dotPos
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !unicode.IsLetter(r) && r != '.' {
			break
		}
		start -= size
	}
	return abbreviations[strings.ToLower(text[start:dotPos])]
}

// splitWords greedily packs whitespace-separated words up to maxChars.
// A single word longer than maxChars is hard-cut.
func splitWords(text string, maxChars int) []string {
	var segments []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		for len(word) > maxChars {
			if cur.Len() > 0 {
				segments = append(segments, cur.String())
				cur.Reset()
			}
			segments = append(segments, word[:maxChars])
			word = word[maxChars:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > maxChars {
			segments = append(segments, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		segments = append(segments, cur.String())
	}
	return segments
}

// mergeWithOverlap packs segments into chunks up to maxChars, carrying the
// last overlapChars of each chunk into the start of the next.
func mergeWithOverlap(segments []string, maxChars, overlapChars int) []string {
	var chunks []string
	var cur strings.Builder

	for _, seg := range segments {
		needed := len(seg)
		if cur.Len() > 0 {
			needed += cur.Len() + 1
		}
		if needed > maxChars && cur.Len() > 0 {
			chunk := cur.String()
			chunks = append(chunks, chunk)
			cur.Reset()
			if tail := overlapSuffix(chunk, overlapChars); tail != "" && len(tail)+1+len(seg) <= maxChars {
				cur.WriteString(tail)
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(seg)
	}
	if strings.TrimSpace(cur.String()) != "" {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// overlapSuffix returns up to n trailing characters of text, cut at the
// first word boundary inside the window.
func overlapSuffix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}
	suffix := text[len(text)-n:]
	if idx := strings.IndexByte(suffix, ' '); idx >= 0 {
		suffix = suffix[idx+1:]
	}
	return strings.TrimSpace(suffix)
}

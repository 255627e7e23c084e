package chunker

import (
	"strings"

	"github.com/prlgl/prlgl/parser"
)

// Config controls the splitting behaviour.
type Config struct {
	ChunkSize int // Target characters per chunk.
	Overlap   int // Characters of trailing text carried into the next chunk.
}

// Chunk is one bounded-size span of document text, the unit of embedding
// and retrieval.
type Chunk struct {
	Content      string
	PageNumber   int
	Position     int
	ClauseNumber string // first clause number appearing in the chunk, e.g. "4.2"
}

// Splitter breaks page-level document text into overlapping chunks,
// preferring clause, paragraph and sentence boundaries in that order so a
// chunk rarely cuts through the middle of a provision.
type Splitter struct {
	cfg Config
}

// New returns a Splitter with the given configuration.
// Zero-value fields are replaced with the service defaults (512/128).
func New(cfg Config) *Splitter {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 512
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = 128
	}
	if cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 4
	}
	return &Splitter{cfg: cfg}
}

// Split converts parsed pages into ordered overlapping chunks.
func (s *Splitter) Split(pages []parser.Page) []Chunk {
	var chunks []Chunk
	pos := 0
	for _, page := range pages {
		for _, frag := range s.splitText(page.Content) {
			c := Chunk{
				Content:    frag,
				PageNumber: page.Number,
				Position:   pos,
			}
			if num, ok := firstClauseNumber(frag); ok {
				c.ClauseNumber = num
			}
			chunks = append(chunks, c)
			pos++
		}
	}
	return chunks
}

// splitText breaks one page's text into fragments of at most ChunkSize
// characters with Overlap characters shared between consecutive fragments.
func (s *Splitter) splitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.cfg.ChunkSize {
		return []string{text}
	}

	// Prefer clause boundaries: a numbered contract splits naturally into
	// provisions. Fall back to blank-line paragraphs otherwise.
	blocks := SplitByClauses(text)
	if len(blocks) == 1 {
		blocks = splitParagraphs(text)
	}

	var fragments []string
	var current strings.Builder
	overlapText := ""

	flush := func() {
		if current.Len() == 0 {
			return
		}
		frag := strings.TrimSpace(current.String())
		if frag != "" {
			fragments = append(fragments, frag)
		}
		overlapText = tail(frag, s.cfg.Overlap)
		current.Reset()
	}

	for _, block := range blocks {
		// A single oversized block is split at sentence boundaries.
		if len(block) > s.cfg.ChunkSize {
			flush()
			sentFrags := s.splitBySentences(block, overlapText)
			fragments = append(fragments, sentFrags...)
			if len(sentFrags) > 0 {
				overlapText = tail(sentFrags[len(sentFrags)-1], s.cfg.Overlap)
			}
			continue
		}

		if current.Len()+len(block) > s.cfg.ChunkSize && current.Len() > 0 {
			flush()
			if overlapText != "" {
				current.WriteString(overlapText)
				current.WriteString("\n")
			}
		}

		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(block)
	}
	flush()

	return fragments
}

// splitBySentences breaks an oversized block at sentence boundaries,
// prepending overlap from the previous fragment.
func (s *Splitter) splitBySentences(text string, initialOverlap string) []string {
	sentences := splitSentences(text)
	var fragments []string
	var current strings.Builder

	if initialOverlap != "" {
		current.WriteString(initialOverlap)
		current.WriteString(" ")
	}

	for _, sent := range sentences {
		// A pathological sentence longer than ChunkSize is hard-cut.
		for len(sent) > s.cfg.ChunkSize {
			cut := strings.LastIndex(sent[:s.cfg.ChunkSize], " ")
			if cut <= 0 {
				cut = s.cfg.ChunkSize
			}
			if current.Len() > 0 {
				fragments = append(fragments, strings.TrimSpace(current.String()))
				current.Reset()
			}
			fragments = append(fragments, strings.TrimSpace(sent[:cut]))
			sent = strings.TrimSpace(sent[cut:])
		}

		if current.Len()+len(sent) > s.cfg.ChunkSize && current.Len() > 0 {
			frag := strings.TrimSpace(current.String())
			fragments = append(fragments, frag)
			current.Reset()
			if overlap := tail(frag, s.cfg.Overlap); overlap != "" {
				current.WriteString(overlap)
				current.WriteString(" ")
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
	}

	if current.Len() > 0 {
		frag := strings.TrimSpace(current.String())
		if frag != "" {
			fragments = append(fragments, frag)
		}
	}
	return fragments
}

// splitParagraphs splits text on blank-line boundaries.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// splitSentences is a simple sentence tokeniser. It splits on
// period/question-mark/exclamation followed by whitespace or end of
// string.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// firstClauseNumber returns the first clause number found on any line of
// the fragment. Overlap carried from the previous chunk can push the
// clause heading off the first line.
func firstClauseNumber(frag string) (string, bool) {
	for _, line := range strings.Split(frag, "\n") {
		if num, ok := ExtractClauseNumber(line); ok {
			return num, true
		}
	}
	return "", false
}

// tail returns the trailing portion of text of at most n characters,
// cut at a word boundary.
func tail(text string, n int) string {
	if n <= 0 || text == "" {
		return ""
	}
	if len(text) <= n {
		return text
	}
	cut := strings.IndexAny(text[len(text)-n:], " \n")
	if cut < 0 {
		return text[len(text)-n:]
	}
	return strings.TrimSpace(text[len(text)-n+cut:])
}

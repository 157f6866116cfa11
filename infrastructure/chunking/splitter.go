// Package chunking splits a source column into chunks and renders each chunk
// through the vectorizer's formatting template. Sizes are measured in runes.
package chunking

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/helixml/vectorizer/domain/vectorizer"
)

// Splitter breaks text into chunks.
type Splitter interface {
	Split(text string) []string
}

// NewSplitter returns the splitter a chunking configuration selects. The
// configuration is expected to carry defaults already.
func NewSplitter(cfg vectorizer.ChunkingConfig) (Splitter, error) {
	switch cfg.Implementation {
	case vectorizer.ChunkingNone:
		return NoneSplitter{}, nil
	case vectorizer.ChunkingCharacter:
		if err := checkSizes(cfg); err != nil {
			return nil, err
		}
		return CharacterSplitter{separator: cfg.Separator, size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}, nil
	case vectorizer.ChunkingRecursive:
		if err := checkSizes(cfg); err != nil {
			return nil, err
		}
		seps := cfg.Separators
		if len(seps) == 0 {
			seps = vectorizer.DefaultRecursiveSeparators
		}
		return RecursiveSplitter{separators: seps, size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}, nil
	default:
		return nil, vectorizer.NewConfigError("chunking.implementation", fmt.Sprintf("unrecognized %q", cfg.Implementation))
	}
}

func checkSizes(cfg vectorizer.ChunkingConfig) error {
	if cfg.ChunkSize <= 0 {
		return vectorizer.NewConfigError("chunking.chunk_size", "must be positive")
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return vectorizer.NewConfigError("chunking.chunk_overlap",
			fmt.Sprintf("overlap (%d) must be less than size (%d)", cfg.ChunkOverlap, cfg.ChunkSize))
	}
	return nil
}

// NoneSplitter emits the whole text as a single chunk.
type NoneSplitter struct{}

// Split returns text unchanged, or nothing when it is blank.
func (NoneSplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []string{text}
}

// CharacterSplitter splits on a single separator and packs the pieces into
// chunks of at most size runes, carrying up to overlap runes forward.
type CharacterSplitter struct {
	separator string
	size      int
	overlap   int
}

// Split implements Splitter.
func (s CharacterSplitter) Split(text string) []string {
	return merge(splitOn(text, s.separator, false), s.separator, s.size, s.overlap)
}

// RecursiveSplitter tries separators in order, splitting pieces that are
// still too large with the next separator.
type RecursiveSplitter struct {
	separators []string
	size       int
	overlap    int
}

// Split implements Splitter.
func (s RecursiveSplitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s RecursiveSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var chunks, good []string
	for _, piece := range splitOn(text, separator, true) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, merge(good, "", s.size, s.overlap)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, merge(good, "", s.size, s.overlap)...)
	}
	return chunks
}

// splitOn splits text on sep, dropping empty pieces. With keep, the separator
// stays attached to the start of the piece that follows it. An empty sep
// splits into runes.
func splitOn(text, sep string, keep bool) []string {
	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	for i, p := range parts {
		if keep && i > 0 {
			p = sep + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

// merge packs pieces joined by sep into chunks of at most size runes. After a
// chunk is emitted, leading pieces are dropped until no more than overlap
// runes remain to seed the next chunk. A single piece larger than size is
// emitted on its own.
func merge(pieces []string, sep string, size, overlap int) []string {
	sepLen := runeLen(sep)
	var chunks []string
	var current []string
	total := 0

	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		n := runeLen(p)
		if total+n+joinLen() > size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				chunks = append(chunks, doc)
			}
			for total > overlap || (total+n+joinLen() > size && total > 0) {
				drop := runeLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}

	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		chunks = append(chunks, doc)
	}
	return chunks
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

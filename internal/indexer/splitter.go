package indexer

import (
	"strings"
	"unicode/utf8"
)

// Splitter defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// defaultSeparators are tried in order: paragraphs, lines, words, characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most Size characters, where adjacent
// chunks share up to Overlap characters of context. It prefers to break on the
// coarsest separator that keeps pieces under Size and falls back to finer ones
// for oversized pieces. Lengths are counted in runes.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewSplitter returns a Splitter with the default separators. Non-positive
// size or negative overlap select the defaults; an overlap of size or more is
// clamped below size.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 5
	}
	return Splitter{Size: size, Overlap: overlap, Separators: defaultSeparators}
}

// Split returns the chunks of text. Chunks are trimmed of surrounding
// whitespace and never empty.
func (s Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = defaultSeparators
	}
	return s.split(text, seps)
}

func (s Splitter) split(text string, seps []string) []string {
	sep, rest := seps[len(seps)-1], []string(nil)
	for i, c := range seps {
		if c == "" {
			sep = ""
			break
		}
		if strings.Contains(text, c) {
			sep, rest = c, seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, small []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) < s.Size {
			small = append(small, p)
			continue
		}
		if len(small) > 0 {
			out = append(out, s.merge(small, sep)...)
			small = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, s.split(p, rest)...)
		}
	}
	if len(small) > 0 {
		out = append(out, s.merge(small, sep)...)
	}
	return out
}

// merge greedily packs pieces into chunks, carrying the tail of each chunk
// into the next one while it fits within Overlap.
func (s Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	var (
		docs  []string
		cur   []string
		total int
	)
	joinLen := func() int {
		if len(cur) > 0 {
			return sepLen
		}
		return 0
	}
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinLen() > s.Size && len(cur) > 0 {
			if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.Overlap || (total > 0 && total+n+joinLen() > s.Size) {
				drop := utf8.RuneCountInString(cur[0])
				if len(cur) > 1 {
					drop += sepLen
				}
				total -= drop
				cur = cur[1:]
			}
		}
		total += n + joinLen()
		cur = append(cur, p)
	}
	if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

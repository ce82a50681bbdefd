package document

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Segment is a piece of split text with its byte offsets in the source.
type Segment struct {
	Text  string
	Start int
	End   int
}

type span struct {
	start, end int
}

// Splitter cuts text recursively on paragraph, line, word and finally
// character boundaries so that every segment fits into size runes. Adjacent
// segments share up to overlap runes.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}

	return &Splitter{size: size, overlap: overlap, separators: defaultSeparators}, nil
}

// Split returns the ordered segments of text. Whitespace-only segments are dropped.
func (s *Splitter) Split(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	spans := s.split(text, span{0, len(text)}, s.separators)

	segments := make([]Segment, 0, len(spans))
	for _, sp := range spans {
		sp = trimSpan(text, sp)
		if sp.start >= sp.end {
			continue
		}
		segments = append(segments, Segment{Text: text[sp.start:sp.end], Start: sp.start, End: sp.end})
	}
	return segments
}

func (s *Splitter) split(text string, sp span, separators []string) []span {
	separator := separators[len(separators)-1]
	var next []string
	for i, candidate := range separators {
		if candidate == "" {
			separator = ""
			break
		}
		if strings.Contains(text[sp.start:sp.end], candidate) {
			separator = candidate
			next = separators[i+1:]
			break
		}
	}

	var (
		out  []span
		good []span
	)
	for _, piece := range cut(text, sp, separator) {
		if s.length(text, piece) <= s.size {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			out = append(out, s.merge(text, good)...)
			good = nil
		}

		if len(next) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, s.split(text, piece, next)...)
	}

	if len(good) > 0 {
		out = append(out, s.merge(text, good)...)
	}
	return out
}

// merge joins contiguous pieces into windows of at most size runes, carrying
// up to overlap runes from the end of one window into the next.
func (s *Splitter) merge(text string, pieces []span) []span {
	var (
		out    []span
		window []span
		total  int
	)

	for _, piece := range pieces {
		n := s.length(text, piece)
		if total+n > s.size && len(window) > 0 {
			out = append(out, span{window[0].start, window[len(window)-1].end})
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= s.length(text, window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}

	if len(window) > 0 {
		out = append(out, span{window[0].start, window[len(window)-1].end})
	}
	return out
}

func (s *Splitter) length(text string, sp span) int {
	return utf8.RuneCountInString(text[sp.start:sp.end])
}

// cut splits sp at every occurrence of separator, keeping the separator at
// the start of the following piece. An empty separator cuts between runes.
func cut(text string, sp span, separator string) []span {
	var pieces []span

	if separator == "" {
		for i := sp.start; i < sp.end; {
			_, size := utf8.DecodeRuneInString(text[i:sp.end])
			pieces = append(pieces, span{i, i + size})
			i += size
		}
		return pieces
	}

	start := sp.start
	searchFrom := sp.start
	for searchFrom < sp.end {
		idx := strings.Index(text[searchFrom:sp.end], separator)
		if idx < 0 {
			break
		}
		at := searchFrom + idx
		if at > start {
			pieces = append(pieces, span{start, at})
			start = at
		}
		searchFrom = at + len(separator)
	}
	if start < sp.end {
		pieces = append(pieces, span{start, sp.end})
	}
	return pieces
}

func trimSpan(text string, sp span) span {
	for sp.start < sp.end {
		r, size := utf8.DecodeRuneInString(text[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.start += size
	}
	for sp.end > sp.start {
		r, size := utf8.DecodeLastRuneInString(text[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.end -= size
	}
	return sp
}

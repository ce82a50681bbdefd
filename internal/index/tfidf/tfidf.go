// Package tfidf provides an offline embedder fitted to a single corpus.
package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/spigell/claim-evaluator/internal/index"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Vectorizer fits TF-IDF models. It is stateless and safe for concurrent use.
type Vectorizer struct {
	stopwords map[string]struct{}
}

var _ index.Preparer = Vectorizer{}

func NewVectorizer() Vectorizer {
	return Vectorizer{stopwords: defaultStopwords()}
}

func (Vectorizer) Name() string { return "tfidf" }

// Prepare builds the vocabulary and smoothed IDF weights of corpus.
func (v Vectorizer) Prepare(_ context.Context, corpus []string) (index.Embedder, error) {
	if len(corpus) == 0 {
		return nil, errors.New("empty corpus for TF-IDF prepare")
	}

	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range v.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if len(terms) == 0 {
		return nil, errors.New("no tokens found in corpus")
	}
	sort.Strings(terms)

	m := &Model{
		vectorizer: v,
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
	}
	n := float64(len(corpus))
	for i, term := range terms {
		m.vocabulary[term] = i
		m.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	return m, nil
}

func (v Vectorizer) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := v.stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Model is a fitted, read-only TF-IDF embedder.
type Model struct {
	vectorizer Vectorizer
	vocabulary map[string]int
	idf        []float64
}

// Dimension is the vocabulary size.
func (m *Model) Dimension() int { return len(m.idf) }

func (m *Model) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.embed(text)
	}
	return out, nil
}

func (m *Model) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return m.embed(text), nil
}

// embed returns the L2-normalized TF-IDF vector of text. Unknown terms are ignored.
func (m *Model) embed(text string) []float32 {
	vec := make([]float32, len(m.idf))

	tf := make(map[int]int)
	total := 0
	for _, tok := range m.vectorizer.tokenize(text) {
		if idx, ok := m.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}

	weights := make(map[int]float64, len(tf))
	norm := 0.0
	for idx, count := range tf {
		w := float64(count) / float64(total) * m.idf[idx]
		weights[idx] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)

	for idx, w := range weights {
		vec[idx] = float32(w / norm)
	}
	return vec
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about",
		"between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same",
		"too", "very", "can", "will", "just", "should", "now", "shall", "any", "all",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

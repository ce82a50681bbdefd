package document

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/claim-evaluator/internal/domain"
)

const (
	// DefaultExtension is assumed when the document URL path has no extension.
	DefaultExtension = ".pdf"

	defaultDownloadTimeout = 30 * time.Second
	defaultMaxBytes        = 20 << 20
)

// ErrUnsupportedFileType is returned for extensions without a registered extractor.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// Options configure a Source.
type Options struct {
	ChunkSize       int           `mapstructure:"chunk-size"`
	ChunkOverlap    int           `mapstructure:"chunk-overlap"`
	DownloadTimeout time.Duration `mapstructure:"download-timeout"`
	MaxBytes        int64         `mapstructure:"max-bytes"`
}

// Source downloads documents by URL and splits them into chunks.
type Source struct {
	fetcher    *fetcher
	splitter   *Splitter
	extractors map[string]Extractor
	logger     *zap.Logger
}

var _ domain.DocumentSource = (*Source)(nil)

// NewSource creates a Source that understands .txt, .docx and .pdf. Register
// adds formats or replaces an extractor.
func NewSource(opts Options, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	splitter, err := NewSplitter(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	timeout := opts.DownloadTimeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	s := &Source{
		fetcher: &fetcher{
			HTTPClient: &http.Client{Timeout: timeout},
			UserAgent:  userAgent,
			maxBytes:   maxBytes,
			logger:     logger,
		},
		splitter:   splitter,
		extractors: make(map[string]Extractor),
		logger:     logger,
	}

	s.Register(".txt", PlainText)
	s.Register(".docx", WordDocument)
	s.Register(".pdf", PortableDocument)

	return s, nil
}

// Register binds an extractor to a file extension such as ".pdf".
func (s *Source) Register(ext string, extractor Extractor) {
	s.extractors[normalizeExt(ext)] = extractor
}

// Load downloads fileURL, extracts its text and splits it into ordered chunks.
// The extension is checked before anything is downloaded.
func (s *Source) Load(ctx context.Context, fileURL string) ([]domain.Chunk, error) {
	ext, err := Extension(fileURL)
	if err != nil {
		return nil, err
	}

	extractor, ok := s.extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, ext)
	}

	data, err := s.fetcher.fetch(ctx, fileURL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileURL, err)
	}

	text, err := extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s text: %w", ext, err)
	}

	segments := s.splitter.Split(text)
	if len(segments) == 0 {
		return nil, errors.New("document contains no text")
	}

	chunks := make([]domain.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = domain.Chunk{
			Text: seg.Text,
			Metadata: map[string]any{
				"source": fileURL,
				"chunk":  i,
				"loc":    map[string]any{"start": seg.Start, "end": seg.End},
			},
		}
	}

	s.logger.Debug("document split",
		zap.String("url", fileURL),
		zap.String("extension", ext),
		zap.Int("characters", len(text)),
		zap.Int("chunks", len(chunks)),
	)

	return chunks, nil
}

// Extension returns the lower-cased extension of the URL path, or
// DefaultExtension when there is none.
func Extension(fileURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(fileURL))
	if err != nil {
		return "", fmt.Errorf("parse document url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("document url %q must use http or https", fileURL)
	}

	ext := path.Ext(u.Path)
	if ext == "" {
		return DefaultExtension, nil
	}
	return normalizeExt(ext), nil
}

// Metadata decodes the metadata attached by Load into its typed form.
func Metadata(chunk domain.Chunk) (domain.ChunkMetadata, error) {
	var md domain.ChunkMetadata
	if err := mapstructure.Decode(chunk.Metadata, &md); err != nil {
		return domain.ChunkMetadata{}, fmt.Errorf("decode chunk metadata: %w", err)
	}
	return md, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

package document

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const userAgent = "spigell/claim-evaluator"

// ErrTooLarge is returned when a document exceeds the configured size limit.
var ErrTooLarge = errors.New("document exceeds size limit")

type fetcher struct {
	HTTPClient *http.Client
	UserAgent  string
	maxBytes   int64
	logger     *zap.Logger
}

func (f *fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	f.logger.Debug("download document", zap.String("url", url))
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	if f.maxBytes > 0 {
		reader = io.LimitReader(reader, f.maxBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, f.maxBytes)
	}

	f.logger.Debug("document downloaded", zap.String("url", url), zap.Int("bytes", len(data)))
	return data, nil
}

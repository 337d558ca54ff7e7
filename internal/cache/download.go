package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// HTTPStatusError is returned when the remote answers with a non-2xx status.
type HTTPStatusError struct {
	URI    string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("download %s: http status %d", e.URI, e.Status)
}

// permanent reports whether retrying cannot help (client errors other than 408/429).
func (e *HTTPStatusError) permanent() bool {
	return e.Status >= 400 && e.Status < 500 &&
		e.Status != http.StatusRequestTimeout && e.Status != http.StatusTooManyRequests
}

// download fetches uri into a uniquely named partial file and returns its
// path and size. Failed attempts never leave a partial file behind. Attempt n
// waits delay*n before the next one.
func (c *Cache) download(ctx context.Context, uri, key string) (string, int64, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		tmp := filepath.Join(c.dir, key+modelExt+"."+uuid.NewString()+partExt)
		n, err := c.downloadOnce(ctx, uri, tmp)
		if err == nil {
			cacheDownloadBytes.Add(float64(n))
			c.log.Info().Str("event", "download_done").Str("uri", uri).Int64("bytes", n).Int("attempt", attempt).Msg("download complete")
			return tmp, n, nil
		}
		_ = os.Remove(tmp)
		lastErr = err
		cacheDownloadErrors.WithLabelValues(downloadErrReason(err)).Inc()
		c.log.Warn().Err(err).Str("uri", uri).Int("attempt", attempt).Int("max_attempts", c.attempts).Msg("download attempt failed")

		var hs *HTTPStatusError
		if errors.As(err, &hs) && hs.permanent() {
			break
		}
		if errors.Is(err, ErrTooLarge) || ctx.Err() != nil {
			break
		}
		if attempt < c.attempts && c.delay > 0 {
			select {
			case <-ctx.Done():
				return "", 0, ctx.Err()
			case <-time.After(c.delay * time.Duration(attempt)):
			}
		}
	}
	return "", 0, lastErr
}

func (c *Cache) downloadOnce(ctx context.Context, uri, tmp string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &HTTPStatusError{URI: uri, Status: resp.StatusCode}
	}
	if resp.ContentLength > c.limit {
		return 0, fmt.Errorf("%w: content-length %d > %d bytes", ErrTooLarge, resp.ContentLength, c.limit)
	}

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create partial file: %w", err)
	}
	// Read at most limit+1 bytes so an oversized body without Content-Length is detected.
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, c.limit+1))
	syncErr := f.Sync()
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		return n, fmt.Errorf("download %s: %w", uri, copyErr)
	case n > c.limit:
		return n, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.limit)
	case resp.ContentLength >= 0 && n != resp.ContentLength:
		return n, fmt.Errorf("download %s: short body %d of %d bytes", uri, n, resp.ContentLength)
	case syncErr != nil:
		return n, fmt.Errorf("sync partial file: %w", syncErr)
	case closeErr != nil:
		return n, fmt.Errorf("close partial file: %w", closeErr)
	}
	return n, nil
}

func downloadErrReason(err error) string {
	var hs *HTTPStatusError
	switch {
	case errors.As(err, &hs):
		return "status"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}

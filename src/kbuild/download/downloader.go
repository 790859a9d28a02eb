// Package download fetches the toolchain archive over HTTP(S).
//
// Bytes are streamed into "<dest>.part"; an existing part is resumed with a
// Range request and only renamed onto dest once the whole body has arrived
// and its digest has been checked.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bitswalk/kbuild/src/common/errors"
	"github.com/bitswalk/kbuild/src/common/logs"
	"github.com/bitswalk/kbuild/src/kbuild/workspace"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the download package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// UserAgent is sent with every request
const UserAgent = "kbuild/1.0"

// ProgressCallback is called with download progress updates.
// totalBytes is -1 when the server did not announce a length.
type ProgressCallback func(bytesReceived, totalBytes int64)

// Request describes one archive to fetch
type Request struct {
	URL string

	// Dest is the final path of the archive
	Dest string

	// SHA256 is the expected lowercase hex digest, empty to skip verification
	SHA256 string
}

// Result contains the result of a download operation
type Result struct {
	Path     string
	Checksum string
	Size     int64
	Resumed  bool
	Duration time.Duration
}

// Downloader handles resumable HTTP downloads
type Downloader struct {
	httpClient *http.Client
	rateLimit  int64
}

// NewDownloader creates a new downloader. rateLimit is in bytes per second, 0 = unlimited.
func NewDownloader(httpClient *http.Client, rateLimit int64) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 0, // Toolchain archives are large
		}
	}
	return &Downloader{
		httpClient: httpClient,
		rateLimit:  rateLimit,
	}
}

// Fetch downloads req.URL to req.Dest, resuming a previous partial download if present
func (d *Downloader) Fetch(ctx context.Context, req Request, progressCb ProgressCallback) (*Result, error) {
	start := time.Now()
	partPath := req.Dest + workspace.PartSuffix

	file, err := os.OpenFile(partPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", partPath, err)
	}
	defer file.Close()

	// Hash what a previous run already received; the file offset ends up at its end
	digest := sha256.New()
	offset, err := io.Copy(digest, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read partial download: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", UserAgent)
	if offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	resumed := false
	totalBytes := resp.ContentLength

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// Nothing left to send: the part already holds the whole archive
		log.Debug("Partial download already complete", "path", partPath, "size", offset)
		resumed = true
		totalBytes = offset

	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		if err := checkContentRange(resp.Header.Get("Content-Range"), offset); err != nil {
			return nil, err
		}
		log.Info("Resuming download", "url", req.URL, "offset", offset)
		resumed = true
		if totalBytes >= 0 {
			totalBytes += offset
		}
		if err := d.copyBody(ctx, resp.Body, io.MultiWriter(file, digest), offset, totalBytes, progressCb); err != nil {
			return nil, err
		}

	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			log.Info("Server ignored range request, restarting download", "url", req.URL)
			digest.Reset()
			if err := restart(file); err != nil {
				return nil, err
			}
		}
		if err := d.copyBody(ctx, resp.Body, io.MultiWriter(file, digest), 0, totalBytes, progressCb); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", partPath, err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", partPath, err)
	}

	checksum := hex.EncodeToString(digest.Sum(nil))
	if req.SHA256 != "" && !strings.EqualFold(checksum, req.SHA256) {
		os.Remove(partPath)
		return nil, errors.ErrChecksumMismatch.WithMessagef(
			"checksum mismatch for %s: expected %s, got %s", req.URL, req.SHA256, checksum)
	}

	if err := os.Rename(partPath, req.Dest); err != nil {
		return nil, fmt.Errorf("failed to move %s into place: %w", partPath, err)
	}

	return &Result{
		Path:     req.Dest,
		Checksum: checksum,
		Size:     stat.Size(),
		Resumed:  resumed,
		Duration: time.Since(start),
	}, nil
}

// copyBody streams body into w, reporting progress from an initial offset
func (d *Downloader) copyBody(ctx context.Context, body io.Reader, w io.Writer, offset, totalBytes int64, progressCb ProgressCallback) error {
	reader := throttle(ctx, body, d.rateLimit)

	bytesReceived := offset
	buf := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("failed to write partial download: %w", writeErr)
			}
			bytesReceived += int64(n)
			if progressCb != nil {
				progressCb(bytesReceived, totalBytes)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read response body: %w", readErr)
		}
	}

	if totalBytes >= 0 && bytesReceived != totalBytes {
		return fmt.Errorf("short download: received %d of %d bytes", bytesReceived, totalBytes)
	}
	return nil
}

// restart empties a partial file so it can be written from the start
func restart(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate partial download: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind partial download: %w", err)
	}
	return nil
}

// checkContentRange verifies a 206 response continues exactly where the part ends
func checkContentRange(header string, offset int64) error {
	want := fmt.Sprintf("bytes %d-", offset)
	if !strings.HasPrefix(header, want) {
		return fmt.Errorf("server resumed at %q, expected %q", header, want)
	}
	return nil
}

package scraper

import (
	"context"
	"fmt"
	"mime"
	"net/http"
)

// FileInfo is what a HEAD request says about a media file.
type FileInfo struct {
	Length   int64
	MimeType string
}

// ProbeFile asks the server hosting fileURL for the size and MIME type of
// the file.
func ProbeFile(ctx context.Context, client *http.Client, fileURL string) (*FileInfo, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", fileURL, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to probe %s: status %d", fileURL, resp.StatusCode)
	}

	info := &FileInfo{}
	if resp.ContentLength > 0 {
		info.Length = resp.ContentLength
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			info.MimeType = mediaType
		}
	}
	return info, nil
}

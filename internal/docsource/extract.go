// Package docsource turns the supported document inputs (local files, URLs,
// git repositories of text files) into plain text for card generation.
package docsource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// SaveUpload writes an uploaded document into the media directory under a
// fresh uuid-based name, keeping the original extension. The returned path
// doubles as the document's context key.
func SaveUpload(mediaDir, filename string, r io.Reader) (string, error) {
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create media dir %s: %w", mediaDir, err)
	}

	path := filepath.Join(mediaDir, uuid.NewString()+filepath.Ext(filename))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// ExtractFile reads a document from disk and returns its plain text.
// Markdown and plain text pass through as-is; PDFs go through the pdf reader.
func ExtractFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDFFile(path)
	case ".txt", ".md", ".markdown", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

// FetchURL downloads a document and returns its plain text, sniffing PDFs
// from the content type. Unknown content types are treated as text.
func FetchURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s returned status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "pdf") {
		return extractPDF(bytes.NewReader(body), int64(len(body)))
	}
	return string(body), nil
}

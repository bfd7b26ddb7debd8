package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// httpFetcher satisfies source.PageFetcher with a plain HTTP GET. Sites
// that require JavaScript need a headless-browser implementation
// plugged in instead.
type httpFetcher struct {
	client *http.Client
}

func (f *httpFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// documentRenderer satisfies source.PDFRenderer by writing the
// assembled HTML document to the destination path. A real PDF engine
// (wkhtmltopdf, a headless browser) slots in behind the same interface.
type documentRenderer struct{}

func (documentRenderer) Render(ctx context.Context, html, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(html), 0o644)
}

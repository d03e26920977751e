package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// maxDocumentSize bounds a single download. The largest perfmon event files
// are a few MB.
const maxDocumentSize int64 = 64 << 20

// fetcher downloads the map file and event documents from a perfmon mirror.
// It never retries: a failed fetch ends the run.
type fetcher struct {
	client     *http.Client
	mapFileURL string
	baseURL    string
	userAgent  string
}

func newFetcher(cfg config) *fetcher {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &fetcher{
		client:     &http.Client{Timeout: cfg.Timeout, Transport: tr},
		mapFileURL: cfg.MapFileURL,
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
	}
}

func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", url)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", url)
	}
	if int64(len(data)) > maxDocumentSize {
		return nil, errors.Errorf("fetch %s: larger than %d bytes", url, maxDocumentSize)
	}
	return data, nil
}

// MapFile fetches and parses the map file.
func (f *fetcher) MapFile(ctx context.Context) ([]mapEntry, error) {
	data, err := f.get(ctx, f.mapFileURL)
	if err != nil {
		return nil, err
	}
	entries, err := parseMapFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, f.mapFileURL)
	}
	return entries, nil
}

// Document fetches the event file at base URL + filename.
func (f *fetcher) Document(ctx context.Context, filename string) ([]byte, error) {
	return f.get(ctx, documentURL(f.baseURL, filename))
}

// documentURL joins like the map file expects: Filename values carry their
// own leading slash. A missing slash on both sides is supplied.
func documentURL(base, filename string) string {
	if !strings.HasSuffix(base, "/") && !strings.HasPrefix(filename, "/") {
		return fmt.Sprintf("%s/%s", base, filename)
	}
	return base + filename
}

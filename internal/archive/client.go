package archive

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dipscan/dipscan/internal/config"
)

// searchTimeout bounds the catalogue search request. File downloads are not
// bounded here — the batch layer enforces its own per-file deadline.
const searchTimeout = 30 * time.Second

// FileHandle identifies one remote light-curve file discovered by Search.
type FileHandle struct {
	// TargetID is the KIC catalogue number the file belongs to.
	TargetID int `json:"kic_number"`

	// Filename is the archive's name for the file, used for scratch paths.
	Filename string `json:"filename"`

	// URL is the absolute download location.
	URL string `json:"url"`

	// Quarter is the mission quarter the curve was observed in.
	Quarter int `json:"quarter"`
}

// Client talks to the remote light-curve archive.
// It implements both the search and download capabilities the batch layer
// consumes.
type Client struct {
	endpoint string
	client   *http.Client
}

// New builds a Client for the configured archive.
// The HTTP client is constructed once and reused for all requests.
func New(cfg config.ArchiveConfig) *Client {
	transport := &authRoundTripper{
		base: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
			},
		},
		auth: cfg.Auth,
	}
	return &Client{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Transport: transport},
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// Search queries the catalogue for all light-curve files of the given target.
// The returned handles preserve the archive's discovery order. An unknown
// target yields an empty list, not an error.
func (c *Client) Search(ctx context.Context, id int) ([]FileHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/catalog/kic/%d/files", c.endpoint, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive: search kic %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive: search kic %d: unexpected status %d", id, resp.StatusCode)
	}

	var handles []FileHandle
	if err := json.NewDecoder(resp.Body).Decode(&handles); err != nil {
		return nil, fmt.Errorf("archive: search kic %d: decode response: %w", id, err)
	}
	return handles, nil
}

// Download fetches the handle's file into dir and returns the local path.
// It blocks until the transfer finishes or fails; the archive offers no
// mid-transfer cancellation, so callers enforce deadlines externally.
func (c *Client) Download(h FileHandle, dir string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, h.URL, nil)
	if err != nil {
		return "", fmt.Errorf("archive: build download request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("archive: download %q: %w", h.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("archive: download %q: unexpected status %d", h.Filename, resp.StatusCode)
	}

	path := filepath.Join(dir, h.Filename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("archive: create %q: %w", path, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("archive: write %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("archive: close %q: %w", path, err)
	}
	return path, nil
}

// Package release fetches platform release metadata from the upstream
// release feed.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/IntrovertedFL/runtipi/pkg/version"
)

// DefaultEndpoint is the release feed queried when none is configured.
const DefaultEndpoint = "https://api.github.com/repos/runtipi/runtipi/releases/latest"

// Config holds release client configuration.
type Config struct {
	// Endpoint is the URL of the latest-release feed.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds a single fetch.
	Timeout time.Duration `yaml:"timeout"`
}

// Release is the subset of the release feed the platform consumes.
type Release struct {
	Name        string    `json:"name"`
	TagName     string    `json:"tag_name"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
}

// Version returns the release version with any leading v stripped.
func (r *Release) Version() string {
	return version.Normalize(r.TagName)
}

// Client fetches release metadata over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a release client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "release").Logger(),
	}
}

// Latest fetches the latest release from the feed.
func (c *Client) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release feed returned status %d", resp.StatusCode)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("failed to decode release: %w", err)
	}

	if rel.TagName == "" {
		return nil, fmt.Errorf("release feed returned no tag name")
	}

	c.logger.Debug().
		Str("tag", rel.TagName).
		Str("name", rel.Name).
		Msg("Fetched latest release")

	return &rel, nil
}

// LatestVersion fetches the latest release and returns its normalized
// version string.
func (c *Client) LatestVersion(ctx context.Context) (string, error) {
	rel, err := c.Latest(ctx)
	if err != nil {
		return "", err
	}
	return rel.Version(), nil
}

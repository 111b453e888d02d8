// Package hashlookup resolves file hashes against the CIRCL hashlookup
// service and remembers every verdict in a persistent cache. The cache is
// authoritative: once a hash has been resolved, no later run ever queries
// the network for it again.
package hashlookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wintermute101/integrity-checker/internal/record"
)

// DefaultBaseURL is the public CIRCL hashlookup endpoint.
const DefaultBaseURL = "https://hashlookup.circl.lu"

const (
	requestTimeout = 3 * time.Second
	maxAttempts    = 3
	retryDelay     = 50 * time.Millisecond
)

// ErrUnsupportedAlgorithm is returned when the service has no lookup
// endpoint for the requested hash algorithm.
var ErrUnsupportedAlgorithm = errors.New("algorithm not supported by hashlookup")

// StatusError reports an HTTP status the client does not know how to
// interpret. Such responses are retried before being given up on.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected hashlookup status %d", e.StatusCode)
}

// lookupPath maps an algorithm to its endpoint segment. The service only
// indexes md5, sha1 and sha256.
func lookupPath(algorithm record.Algorithm) (string, error) {
	switch algorithm {
	case record.MD5, record.SHA1, record.SHA256:
		return string(algorithm), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
}

// Verdict is the service's answer for a single hash.
type Verdict struct {
	Hash  record.Digest
	Found bool
	Trust uint8
}

// Client is a minimal hashlookup API client: one GET per hash, a short
// timeout, and a couple of retries on transient failures.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client for the given endpoint. An empty baseURL means
// the public CIRCL service.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// Lookup queries the service for one hash. A 404 is a definitive "not in
// the database" answer, not an error. Transient failures are retried with a
// growing delay before the hash is reported as unresolvable.
func (c *Client) Lookup(ctx context.Context, algorithm record.Algorithm, hash record.Digest) (Verdict, error) {
	segment, err := lookupPath(algorithm)
	if err != nil {
		return Verdict{}, err
	}
	url := fmt.Sprintf("%s/lookup/%s/%s", c.baseURL, segment, hash)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := retryDelay * time.Duration(attempt-1)
			c.logger.Debug("retrying hashlookup query",
				slog.String("hash", hash.Short()),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Verdict{}, ctx.Err()
			}
		}

		verdict, err := c.query(ctx, url, hash)
		if err == nil {
			return verdict, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Verdict{}, err
		}
		lastErr = err
	}

	return Verdict{}, fmt.Errorf("lookup %s: %w", hash.Short(), lastErr)
}

func (c *Client) query(ctx context.Context, url string, hash record.Digest) (Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Verdict{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("query hashlookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload struct {
			Trust uint8 `json:"hashlookup:trust"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return Verdict{}, fmt.Errorf("decode hashlookup response: %w", err)
		}
		return Verdict{Hash: hash, Found: true, Trust: payload.Trust}, nil
	case http.StatusNotFound:
		return Verdict{Hash: hash, Found: false}, nil
	default:
		return Verdict{}, &StatusError{StatusCode: resp.StatusCode}
	}
}

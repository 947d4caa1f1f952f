package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/marmos91/emingest/internal/logger"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// HTTPClientConfig configures HTTPClient.
type HTTPClientConfig struct {
	// BaseURL is the entry endpoint, e.g. https://www.ebi.ac.uk/empiar/api/entry
	BaseURL string

	// Timeout bounds a single attempt. Zero means no timeout.
	Timeout time.Duration

	// RetryMax is the number of retries after the first attempt on
	// connection errors and 5xx responses.
	RetryMax int
}

// HTTPClient fetches metadata over HTTP with optional retries.
type HTTPClient struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewHTTPClient builds a client for cfg.BaseURL.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}
	if cfg.RetryMax < 0 {
		return nil, fmt.Errorf("catalog retry_max must be >= 0, got %d", cfg.RetryMax)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = leveledLogger{}
	// Hand the last response back instead of a generic "giving up" error so
	// the status code can be reported.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  rc,
	}, nil
}

// URL returns the endpoint queried for entryID.
func (c *HTTPClient) URL(entryID string) string {
	return fmt.Sprintf("%s/%s/", c.baseURL, entryID)
}

// Fetch performs GET {base}/{entryID}/ and decodes the JSON object.
func (c *HTTPClient) Fetch(ctx context.Context, entryID string) (DatasetMetadata, error) {
	url := c.URL(entryID)
	fail := func(status int, err error) (DatasetMetadata, error) {
		return nil, &FetchError{EntryID: entryID, URL: url, StatusCode: status, Err: err}
	}

	if entryID == "" {
		return fail(0, errors.New("empty entry ID"))
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Accept", "application/json")

	logger.Debug("GET %s", url)
	resp, err := c.client.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fail(resp.StatusCode, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	var md DatasetMetadata
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decoding response body: %w", err))
	}
	if md == nil {
		return fail(resp.StatusCode, errors.New("response is not a JSON object"))
	}

	return md, nil
}

// leveledLogger routes retryablehttp's messages through the process logger.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, kv ...interface{}) { logger.Error("%s%s", msg, formatKV(kv)) }
func (leveledLogger) Warn(msg string, kv ...interface{})  { logger.Warn("%s%s", msg, formatKV(kv)) }
func (leveledLogger) Info(msg string, kv ...interface{})  { logger.Debug("%s%s", msg, formatKV(kv)) }
func (leveledLogger) Debug(msg string, kv ...interface{}) { logger.Debug("%s%s", msg, formatKV(kv)) }

func formatKV(kv []interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

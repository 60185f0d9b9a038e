package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

type jsonClient struct {
	client *http.Client
	retry  RetryConfig
	logger *slog.Logger
}

func newJSONClient(timeout time.Duration, retryCfg RetryConfig, logger *slog.Logger) *jsonClient {
	return &jsonClient{
		client: &http.Client{Timeout: timeout},
		retry:  retryCfg,
		logger: logger,
	}
}

// get fetches url and decodes the JSON body into v, retrying transient
// failures. Responses that do not parse count as failures too.
func (c *jsonClient) get(ctx context.Context, url string, v any) error {
	return retry(ctx, c.retry, url, func(ctx context.Context) error {
		c.logger.Debug("retrieving url", slog.String("url", url))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &FetchError{URL: url, Permanent: true, Err: err}
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNotFound {
			return &FetchError{URL: url, Permanent: true, Err: ErrChannelNotFound}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		return nil
	})
}

// Package adapters implements the read-only HTTP collaborators this service
// consults to enrich events: Fleet, Block Management, Trip Management, GTFS
// Static, and CC Static. Each is a thin JSON client wrapped in exponential
// backoff, grounded on the reference fleet.rs/block_mgt.rs/trip.rs request
// shapes and on the Go HTTP-client idiom from internal/transcribe/whisper.go.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// httpClient is the shared request/response plumbing every adapter embeds:
// a base URL, an *http.Client, a logger, and a bearer-token source. Retries
// apply to the adapters' read requests: the GETs and Trip Management's
// read-only POST query. Outbound publication is never retried here.
type httpClient struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
	tokens  TokenSource
}

// TokenSource supplies the bearer token attached to outbound requests that
// require authorization. DevTokenSource and OAuthTokenSource are the two
// concrete implementations (see identity.go).
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

func newHTTPClient(baseURL string, timeout time.Duration, log zerolog.Logger, tokens TokenSource) httpClient {
	return httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
		tokens:  tokens,
	}
}

// getJSON issues an authenticated GET with the given cache headers, retrying
// transient failures with exponential backoff, and decodes a 2xx JSON body
// into out. It returns (false, nil) for 404 and non-2xx responses (logged as
// a warning, not an error) so callers can treat "not found" and "upstream
// unhappy" identically, matching the original adapters' miss-on-failure
// behavior.
func (c httpClient) getJSON(ctx context.Context, path string, cacheControl, etag string, out any) (bool, error) {
	op := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if cacheControl != "" {
			req.Header.Set("Cache-Control", cacheControl)
		}
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		if c.tokens != nil {
			token, err := c.tokens.AccessToken(ctx)
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("acquiring access token: %w", err))
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, op, backoff.WithMaxTries(3))
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", c.baseURL, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("upstream request failed")
		return false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return true, nil
}

// postJSON issues an authenticated POST with a JSON request body, retrying
// transient failures, and decodes a 2xx response body into out. The
// returned status is the upstream HTTP status code (0 on a network-level
// failure the retry gave up on), so callers that must distinguish "not
// found" from "upstream errored" — as Trip Management's error-marker
// sentinel does — don't have to rely on ok alone.
func (c httpClient) postJSON(ctx context.Context, path string, cacheControl string, reqBody, out any) (ok bool, status int, err error) {
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return false, 0, fmt.Errorf("encoding request body: %w", err)
	}

	op := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if cacheControl != "" {
			req.Header.Set("Cache-Control", cacheControl)
		}
		if c.tokens != nil {
			token, err := c.tokens.AccessToken(ctx)
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("acquiring access token: %w", err))
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, op, backoff.WithMaxTries(3))
	if err != nil {
		return false, 0, fmt.Errorf("%s%s: %w", c.baseURL, path, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode == http.StatusNotFound {
		return false, status, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("upstream request failed")
		return false, status, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, status, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) == 0 {
		return false, status, nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, status, fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return true, status, nil
}

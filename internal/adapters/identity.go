package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DevTokenSource returns a static bearer token from configuration, matching
// the original's ENV=dev substitution of BLOCK_MGT_AUTHORIZATION for a real
// Identity collaborator token.
type DevTokenSource struct {
	Token string
}

func (d DevTokenSource) AccessToken(context.Context) (string, error) {
	return strings.TrimPrefix(d.Token, "Bearer "), nil
}

// OAuthTokenSource acquires and caches a client-credentials access token
// from the Identity collaborator, refreshing it shortly before expiry.
// Token acquisition itself is out of scope as an algorithm (SPEC_FULL.md §6
// names only the configuration shape), so this is a minimal, conventional
// OAuth2 client-credentials exchange.
type OAuthTokenSource struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	client       *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewOAuthTokenSource(tokenURL, clientID, clientSecret string) *OAuthTokenSource {
	return &OAuthTokenSource{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

const tokenExpiryMargin = 30 * time.Second

func (o *OAuthTokenSource) AccessToken(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.token != "" && time.Now().Before(o.expiresAt) {
		return o.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	o.token = payload.AccessToken
	o.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn)*time.Second - tokenExpiryMargin)
	return o.token, nil
}

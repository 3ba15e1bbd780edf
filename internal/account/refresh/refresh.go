// Package refresh wraps the external OAuth token refresh call with a hard
// timeout, per spec.md section 4.3.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/antigravity-pool/accountpool/internal/config"
)

// Timeout is the hard bound on a single refresh attempt.
const Timeout = 15 * time.Second

// Result is the outcome of a successful refresh.
type Result struct {
	Access  string
	Expires int64
}

// TokenExchanger performs the actual refresh-token-for-access-token
// exchange. Swappable so tests can supply a fake and avoid real network
// calls and real 15s timeouts.
type TokenExchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*Result, error)
}

// Refresher requires both a refresh token and a project ID before it will
// call out; it never mutates the account itself, only returns a result for
// the caller to apply via pool.UpdateAccount.
type Refresher struct {
	exchanger TokenExchanger
}

// New constructs a Refresher around the given exchanger. Pass nil to use
// the real OAuth HTTP exchanger.
func New(exchanger TokenExchanger) *Refresher {
	if exchanger == nil {
		exchanger = OAuthExchanger{}
	}
	return &Refresher{exchanger: exchanger}
}

// Refresh returns the new access token/expiry, or nil on missing
// prerequisites, timeout, network error, or a response missing an access
// token.
func (r *Refresher) Refresh(ctx context.Context, refreshToken, projectID string) *Result {
	if refreshToken == "" || projectID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	result, err := r.exchanger.Exchange(ctx, refreshToken)
	if err != nil || result == nil || result.Access == "" {
		return nil
	}
	return result
}

// OAuthExchanger is the real HTTP exchanger against Google's OAuth token
// endpoint, grounded on the teacher's RefreshAccessToken: a form-encoded
// POST of client_id/client_secret/refresh_token/grant_type.
type OAuthExchanger struct {
	HTTPClient *http.Client
}

func (e OAuthExchanger) client() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	return http.DefaultClient
}

// Exchange performs the refresh_token grant against config.OAuthConfig.TokenURL.
func (e OAuthExchanger) Exchange(ctx context.Context, refreshToken string) (*Result, error) {
	form := url.Values{
		"client_id":     {config.OAuthConfig.ClientID},
		"client_secret": {config.OAuthConfig.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.OAuthConfig.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse refresh response: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access_token")
	}

	tok := &oauth2.Token{
		AccessToken: parsed.AccessToken,
		Expiry:      time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}

	return &Result{
		Access:  tok.AccessToken,
		Expires: tok.Expiry.UnixMilli(),
	}, nil
}

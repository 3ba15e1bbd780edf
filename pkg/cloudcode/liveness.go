// Package cloudcode implements the two liveness probes described in
// spec.md section 6: a loadCodeAssist GET for the Gemini family and a
// trivial Claude generateContent POST against the sandbox mirror. Both are
// used by the "verify"/"test" CLI operation, never by the dispatch loop
// itself.
package cloudcode

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/antigravity-pool/accountpool/internal/config"
)

// Status is the outcome of a liveness probe.
type Status int

const (
	StatusValid Status = iota
	StatusInvalid
	StatusUnknown
)

// Prober runs the loadCodeAssist and generateContent liveness probes
// against a live access token.
type Prober struct {
	HTTPClient *http.Client
}

// New constructs a Prober. Pass nil client to use http.DefaultClient.
func New(client *http.Client) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return &Prober{HTTPClient: client}
}

func headers(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	for k, v := range config.AntigravityHeaders() {
		req.Header.Set(k, v)
	}
}

// ProbeGemini validates token reachability via loadCodeAssist, trying each
// endpoint in config.LoadCodeAssistEndpoints until one gives a definitive
// answer.
func (p *Prober) ProbeGemini(ctx context.Context, accessToken, projectID string) Status {
	for _, endpoint := range config.LoadCodeAssistEndpoints {
		status := p.probeGeminiEndpoint(ctx, endpoint, accessToken, projectID)
		if status != StatusUnknown {
			return status
		}
	}
	return StatusUnknown
}

func (p *Prober) probeGeminiEndpoint(ctx context.Context, endpoint, accessToken, projectID string) Status {
	url := endpoint + "/v1internal:loadCodeAssist"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusUnknown
	}
	headers(req, accessToken)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return StatusUnknown
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusOK {
		return StatusValid
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return StatusInvalid
	}
	if strings.Contains(string(body), "Invalid Google Cloud Code Assist credentials") {
		return StatusInvalid
	}
	return StatusUnknown
}

// ProbeClaude sends a trivial generateContent request against the Claude
// sandbox mirror. Quota/throttle responses are treated as valid (the
// credential works, it's just throttled).
func (p *Prober) ProbeClaude(ctx context.Context, accessToken, projectID string) Status {
	payload := map[string]any{
		"project": projectID,
		"request": map[string]any{
			"contents": []map[string]any{
				{"role": "user", "parts": []map[string]any{{"text": "ping"}}},
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return StatusUnknown
	}

	url := config.ClaudeLivenessEndpoint + "/v1internal:generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return StatusUnknown
	}
	req.Header.Set("Content-Type", "application/json")
	headers(req, accessToken)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return StatusUnknown
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	if resp.StatusCode == http.StatusOK {
		return StatusValid
	}
	if strings.Contains(text, "quota") || strings.Contains(text, "rate") || strings.Contains(text, "RESOURCE_EXHAUSTED") {
		return StatusValid
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || strings.Contains(text, "UNAUTHENTICATED") {
		return StatusInvalid
	}
	return StatusUnknown
}

// String renders a Status for CLI/log output.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Package config holds the constants, headers, and runtime configuration
// shared by the account pool, token refresher, dispatch loop, and the
// liveness-probe client.
package config

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// Version is the module version.
const Version = "1.0.0"

// Cloud Code API endpoints, in fallback order (daily then prod).
const (
	AntigravityEndpointDaily = "https://daily-cloudcode-pa.googleapis.com"
	AntigravityEndpointProd  = "https://cloudcode-pa.googleapis.com"
)

// AntigravityEndpointFallbacks is the endpoint fallback order used for
// generateContent-style calls (daily first, then prod).
var AntigravityEndpointFallbacks = []string{
	AntigravityEndpointDaily,
	AntigravityEndpointProd,
}

// LoadCodeAssistEndpoints is the endpoint order for loadCodeAssist (prod
// first — it behaves better for fresh/unprovisioned accounts).
var LoadCodeAssistEndpoints = []string{
	AntigravityEndpointProd,
	AntigravityEndpointDaily,
}

// ClaudeLivenessEndpoint is the sandbox mirror used to probe Claude-family
// credentials with a trivial generateContent call (section 6 of the spec).
const ClaudeLivenessEndpoint = "https://daily-cloudcode-pa.sandbox.googleapis.com"

// DefaultProjectID is used when an account has no discovered project ID.
const DefaultProjectID = "rising-fact-p41fc"

// AntigravityHeaders are the headers required on every Antigravity API
// request. These strings are compatibility-critical and must be emitted
// verbatim — the upstream API keys access on the IDE identity they assert.
func AntigravityHeaders() map[string]string {
	return map[string]string{
		"User-Agent":         platformUserAgent(),
		"X-Goog-Api-Client":  "google-cloud-sdk vscode_cloudshelleditor/0.1",
		"Client-Metadata":    clientMetadataJSON(),
	}
}

// IDE Type enum values expected by the Cloud Code API.
const (
	ideTypeAntigravity = 6
)

// Platform enum values expected by the Cloud Code API.
const (
	platformUnspecified = 0
	platformWindows     = 1
	platformLinux       = 2
	platformMacOS       = 3
)

// Plugin Type enum values expected by the Cloud Code API.
const (
	pluginTypeGemini = 2
)

func platformEnum() int {
	switch runtime.GOOS {
	case "darwin":
		return platformMacOS
	case "windows":
		return platformWindows
	case "linux":
		return platformLinux
	default:
		return platformUnspecified
	}
}

func platformUserAgent() string {
	return fmt.Sprintf("antigravity/1.16.5 %s/%s", runtime.GOOS, runtime.GOARCH)
}

func clientMetadataJSON() string {
	metadata := map[string]int{
		"ideType":    ideTypeAntigravity,
		"platform":   platformEnum(),
		"pluginType": pluginTypeGemini,
	}
	data, _ := json.Marshal(metadata)
	return string(data)
}

// OAuthConfigType describes the Google OAuth endpoints and client
// credentials used by the token refresher.
type OAuthConfigType struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// OAuthConfig is the Google OAuth configuration for Antigravity/Code Assist.
// The OAuth browser login flow itself is out of scope for this module (it's
// an external collaborator); only the token endpoint is used, by the
// refresher.
var OAuthConfig = OAuthConfigType{
	ClientID:     "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com",
	ClientSecret: "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",
	TokenURL:     "https://oauth2.googleapis.com/token",
	Scopes: []string{
		"https://www.googleapis.com/auth/cloud-platform",
		"https://www.googleapis.com/auth/userinfo.email",
	},
}

// ModelFamily is the closed set of rate-limit scopes: claude, gemini-flash,
// gemini-pro.
type ModelFamily string

const (
	FamilyClaude      ModelFamily = "claude"
	FamilyGeminiFlash ModelFamily = "gemini-flash"
	FamilyGeminiPro   ModelFamily = "gemini-pro"
)

// GetModelFamily derives a ModelFamily from a model identifier by
// case-insensitive substring match: "claude" wins first, then "flash",
// else gemini-pro.
func GetModelFamily(modelID string) ModelFamily {
	lower := strings.ToLower(modelID)
	switch {
	case strings.Contains(lower, "claude"):
		return FamilyClaude
	case strings.Contains(lower, "flash"):
		return FamilyGeminiFlash
	default:
		return FamilyGeminiPro
	}
}

// RateLimitHeuristicSubstrings is the exact, case-sensitive substring set
// used to classify a callback error as an explicit rate limit (section 6).
// Kept bug-for-bug: "timeout" also matches benign phrases like "request
// timeout" — see SPEC_FULL.md / DESIGN.md Open Question notes.
var RateLimitHeuristicSubstrings = []string{
	"429", "rate", "quota", "limit", "timeout", "ECONNRESET", "ETIMEDOUT",
}

// MatchesRateLimitHeuristic reports whether msg contains any of the
// rate-limit heuristic substrings.
func MatchesRateLimitHeuristic(msg string) bool {
	for _, s := range RateLimitHeuristicSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// AntigravityProvider is the provider name that gets the 3-attempt dispatch
// budget; every other provider gets exactly 1 attempt.
const AntigravityProvider = "google-antigravity"

package dispatch

// maxAttemptsByProvider generalizes the "3 for Antigravity, 1 otherwise"
// rule into a small registry so a second provider with its own retry budget
// could be added without touching the loop body.
var maxAttemptsByProvider = map[string]int{
	"google-antigravity": 3,
}

// defaultMaxAttempts applies to any provider absent from the registry.
const defaultMaxAttempts = 1

// MaxAttempts returns the retry budget for provider.
func MaxAttempts(provider string) int {
	if n, ok := maxAttemptsByProvider[provider]; ok {
		return n
	}
	return defaultMaxAttempts
}

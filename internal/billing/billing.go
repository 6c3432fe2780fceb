// Package billing holds the token/cost arithmetic for metering model calls
// against prepaid HTR balances, and an optional Postgres archive of usage.
package billing

// MaxOutputTokens caps the model's reply length and bounds the conservative
// pre-call output estimate.
const MaxOutputTokens = 500

// EstimateTokens approximates the token count of text at ~4 characters per
// token, with a floor of one token.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// EstimateOutputTokens is the conservative pre-call projection of reply
// size: never more than the input, never more than the cap.
func EstimateOutputTokens(inputTokens int) int {
	if inputTokens < MaxOutputTokens {
		return inputTokens
	}
	return MaxOutputTokens
}

// Cost prices a call in HTR given the configured rate per 100 tokens.
func Cost(inputTokens, outputTokens int, ratePer100 float64) float64 {
	return float64(inputTokens+outputTokens) / 100 * ratePer100
}

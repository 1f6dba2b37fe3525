// Package tokens estimates the size-cost of request and response payloads.
//
// The estimate is the standard bytes/4 approximation used for budgeting
// payloads against model context windows. It is intentionally model-agnostic:
// callers that need exact counts for a specific tokenizer should count
// downstream with the real vocabulary.
package tokens

// Estimate returns the approximate token cost of a payload.
// Returns 0 for an empty payload.
func Estimate(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	// ceil(len/4)
	return (len(b) + 3) / 4
}

// EstimateString returns the approximate token cost of a string payload.
func EstimateString(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

package throttle

import "strings"

const ageRestrictedPhrase = "sign in to confirm your age"

var rateLimitIndicators = []string{"429", "too many requests"}

// IsAgeRestricted reports whether a backend error message says the video requires a
// signed-in, age-verified account. Such failures are permanent for the track and never
// count as a rate-limit signal.
func IsAgeRestricted(msg string) bool {
	return strings.Contains(strings.ToLower(msg), ageRestrictedPhrase)
}

// IsRateLimit reports whether a backend error message indicates the platform is
// throttling requests.
func IsRateLimit(msg string) bool {
	if IsAgeRestricted(msg) {
		return false
	}
	lower := strings.ToLower(msg)
	for _, indicator := range rateLimitIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

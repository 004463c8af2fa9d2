package reliability

import (
	"strings"
	"time"
)

// Kind buckets a failed conversation-API call by the remedy it calls for.
type Kind string

const (
	KindInvalidCredential   Kind = "invalid_credential"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindForbidden           Kind = "forbidden"
	KindPersonaNotFound     Kind = "persona_not_found"
	KindConcurrencyLimit    Kind = "concurrency_limit"
	KindRateLimited         Kind = "rate_limited"
	KindRemoteService       Kind = "remote_service"
	KindMalformedResponse   Kind = "malformed_response"
	KindNetworkFailure      Kind = "network_failure"
	KindLocalValidation     Kind = "local_validation"
)

// Classify maps an HTTP status plus the extracted error message to a Kind.
//
// The concurrency and credits checks sniff the message text because the
// remote API has never been observed returning a structured code for either
// condition. Treat that classification as best-effort.
func Classify(status int, message string) Kind {
	msg := strings.ToLower(message)

	if status == 402 || strings.Contains(msg, "credits") || strings.Contains(msg, "payment required") {
		return KindInsufficientCredits
	}
	if isConcurrencyMessage(msg) {
		return KindConcurrencyLimit
	}

	switch {
	case status == 401:
		return KindInvalidCredential
	case status == 403:
		return KindForbidden
	case status == 404, status == 400:
		return KindPersonaNotFound
	case status == 429:
		return KindRateLimited
	default:
		return KindRemoteService
	}
}

func isConcurrencyMessage(msg string) bool {
	return strings.Contains(msg, "maximum concurrent conversations") ||
		strings.Contains(msg, "concurrent conversations") ||
		strings.Contains(msg, "reached maximum")
}

// IsRetryable reports whether an automatic retry can help. Only the remote
// concurrency cap clears on its own as stale conversations finish tearing
// down; everything else needs user action or a different persona.
func IsRetryable(k Kind) bool {
	return k == KindConcurrencyLimit
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

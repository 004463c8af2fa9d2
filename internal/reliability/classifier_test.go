package reliability

import (
	"testing"
	"time"
)

func TestClassifyByStatus(t *testing.T) {
	cases := []struct {
		status  int
		message string
		want    Kind
	}{
		{401, "invalid api key", KindInvalidCredential},
		{402, "out of conversational credits", KindInsufficientCredits},
		{403, "no access to persona", KindForbidden},
		{404, "persona not found", KindPersonaNotFound},
		{400, "persona_id is malformed", KindPersonaNotFound},
		{400, "User has reached maximum concurrent conversations", KindConcurrencyLimit},
		{429, "too many requests", KindRateLimited},
		{500, "internal error", KindRemoteService},
		{503, "unavailable", KindRemoteService},
	}
	for _, tc := range cases {
		if got := Classify(tc.status, tc.message); got != tc.want {
			t.Fatalf("Classify(%d, %q) = %q, want %q", tc.status, tc.message, got, tc.want)
		}
	}
}

func TestClassifyCreditsMessageWinsOverStatus(t *testing.T) {
	// Some builds of the remote API report exhausted credits with a 400.
	if got := Classify(400, "Payment Required: add credits to continue"); got != KindInsufficientCredits {
		t.Fatalf("Classify = %q, want %q", got, KindInsufficientCredits)
	}
}

func TestIsRetryableOnlyForConcurrencyLimit(t *testing.T) {
	kinds := []Kind{
		KindInvalidCredential,
		KindInsufficientCredits,
		KindForbidden,
		KindPersonaNotFound,
		KindRateLimited,
		KindRemoteService,
		KindMalformedResponse,
		KindNetworkFailure,
		KindLocalValidation,
	}
	for _, k := range kinds {
		if IsRetryable(k) {
			t.Fatalf("IsRetryable(%q) = true, want false", k)
		}
	}
	if !IsRetryable(KindConcurrencyLimit) {
		t.Fatalf("IsRetryable(%q) = false, want true", KindConcurrencyLimit)
	}
}

func TestExponentialBackoffSchedule(t *testing.T) {
	base := 5 * time.Second
	capDur := 30 * time.Second
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	for attempt, w := range want {
		if got := ExponentialBackoff(attempt, base, capDur); got != w {
			t.Fatalf("attempt %d = %v, want %v", attempt, got, w)
		}
	}
	if got := ExponentialBackoff(3, base, capDur); got != capDur {
		t.Fatalf("attempt 3 = %v, want cap %v", got, capDur)
	}
}

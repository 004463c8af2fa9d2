package tavus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rohitr8j/video-conversation/internal/reliability"
)

func apiErr(t *testing.T, err error) *APIError {
	t.Helper()
	var apiError *APIError
	if !errors.As(err, &apiError) {
		t.Fatalf("error %v is not *APIError", err)
	}
	return apiError
}

func TestCreateRejectsMissingCredentialLocally(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	_, err := c.Create(context.Background(), "", "p1", "", "")
	if err == nil {
		t.Fatalf("Create() error = nil, want local validation failure")
	}
	if got := apiErr(t, err).Kind; got != reliability.KindLocalValidation {
		t.Fatalf("Kind = %q, want %q", got, reliability.KindLocalValidation)
	}
	if calls.Load() != 0 {
		t.Fatalf("network calls = %d, want 0", calls.Load())
	}
}

func TestCreateRejectsPlaceholderPersonaLocally(t *testing.T) {
	c := NewClient("http://127.0.0.1:0")
	_, err := c.Create(context.Background(), "tok", "REPLACE_WITH_YOUR_PERSONA_ID_1", "", "")
	if err == nil {
		t.Fatalf("Create() error = nil, want local validation failure")
	}
	if got := apiErr(t, err).Kind; got != reliability.KindLocalValidation {
		t.Fatalf("Kind = %q, want %q", got, reliability.KindLocalValidation)
	}
}

func TestCreateRoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations" {
			t.Errorf("path = %q, want /conversations", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "tok" {
			t.Errorf("x-api-key = %q, want tok", got)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"conversation_id":"c123","conversation_url":"https://rooms.example/c123","status":"active"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	conv, err := c.Create(context.Background(), "tok", "p1", "Hello!", "Be kind.")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if conv.ConversationID != "c123" || conv.ConversationURL != "https://rooms.example/c123" {
		t.Fatalf("conversation = %+v", conv)
	}
}

func TestCreateClassifiesConcurrencyLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"User has reached maximum concurrent conversations"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	_, err := c.Create(context.Background(), "tok", "p1", "", "")
	got := apiErr(t, err)
	if got.Kind != reliability.KindConcurrencyLimit {
		t.Fatalf("Kind = %q, want %q", got.Kind, reliability.KindConcurrencyLimit)
	}
	if got.StatusCode != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d, want 400", got.StatusCode)
	}
}

func TestCreateMissingFieldsIsMalformed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"active"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	_, err := c.Create(context.Background(), "tok", "p1", "", "")
	if got := apiErr(t, err).Kind; got != reliability.KindMalformedResponse {
		t.Fatalf("Kind = %q, want %q", got, reliability.KindMalformedResponse)
	}
}

func TestCreateErrorMessageExtraction(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantMsg string
		wantK   reliability.Kind
	}{
		{"error field", 401, `{"error":"invalid api key"}`, "invalid api key", reliability.KindInvalidCredential},
		{"message field", 404, `{"message":"persona missing"}`, "persona missing", reliability.KindPersonaNotFound},
		{"detail field", 403, `{"detail":"no access"}`, "no access", reliability.KindForbidden},
		{"plain text", 500, "backend exploded", "backend exploded", reliability.KindRemoteService},
		{"empty body", 502, "", "HTTP status 502", reliability.KindRemoteService},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			c := NewClient(ts.URL)
			_, err := c.Create(context.Background(), "tok", "p1", "", "")
			got := apiErr(t, err)
			if got.Message != tc.wantMsg {
				t.Fatalf("Message = %q, want %q", got.Message, tc.wantMsg)
			}
			if got.Kind != tc.wantK {
				t.Fatalf("Kind = %q, want %q", got.Kind, tc.wantK)
			}
		})
	}
}

func TestCreateNetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // refuse connections

	c := NewClient(ts.URL)
	_, err := c.Create(context.Background(), "tok", "p1", "", "")
	if got := apiErr(t, err).Kind; got != reliability.KindNetworkFailure {
		t.Fatalf("Kind = %q, want %q", got, reliability.KindNetworkFailure)
	}
}

func TestEndIssuesSingleTerminateCall(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/conversations/c123/end" {
			t.Errorf("path = %q, want /conversations/c123/end", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	if err := c.End(context.Background(), "tok", "c123"); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("terminate calls = %d, want 1", calls.Load())
	}
}

func TestEndReturnsClassifiedErrorWithoutPanicking(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("shutting down"))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	err := c.End(context.Background(), "tok", "c123")
	if err == nil {
		t.Fatalf("End() error = nil, want remote failure for caller to log")
	}
	if got := apiErr(t, err).Kind; got != reliability.KindRemoteService {
		t.Fatalf("Kind = %q, want %q", got, reliability.KindRemoteService)
	}
}

package tavus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rohitr8j/video-conversation/internal/catalog"
	"github.com/rohitr8j/video-conversation/internal/reliability"
)

// Conversation is the remote conversation resource returned by a create call.
type Conversation struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
	Status          string `json:"status"`
}

// APIError carries the classification a failed call maps to.
type APIError struct {
	Kind       reliability.Kind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("tavus: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tavus: %s: %s", e.Kind, e.Message)
}

// Client talks to the conversational-video REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type createRequest struct {
	PersonaID             string `json:"persona_id"`
	ConversationName      string `json:"conversation_name"`
	CustomGreeting        string `json:"custom_greeting,omitempty"`
	ConversationalContext string `json:"conversational_context,omitempty"`
}

// Create starts a remote conversation for the given persona. Misconfiguration
// is rejected locally before any network call.
func (c *Client) Create(ctx context.Context, credential, personaRef, greeting, conversationalContext string) (Conversation, error) {
	if strings.TrimSpace(credential) == "" {
		return Conversation{}, &APIError{Kind: reliability.KindLocalValidation, Message: "API token is required"}
	}
	if strings.TrimSpace(personaRef) == "" {
		return Conversation{}, &APIError{Kind: reliability.KindLocalValidation, Message: "persona reference is required"}
	}
	if catalog.IsPlaceholderPersonaRef(personaRef) {
		return Conversation{}, &APIError{
			Kind:    reliability.KindLocalValidation,
			Message: fmt.Sprintf("persona reference %q is a placeholder; set a real persona id", personaRef),
		}
	}

	payload, err := json.Marshal(createRequest{
		PersonaID:             personaRef,
		ConversationName:      "Therapy Session",
		CustomGreeting:        greeting,
		ConversationalContext: conversationalContext,
	})
	if err != nil {
		return Conversation{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conversations", bytes.NewReader(payload))
	if err != nil {
		return Conversation{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", credential)

	res, err := c.client.Do(req)
	if err != nil {
		return Conversation{}, &APIError{Kind: reliability.KindNetworkFailure, Message: err.Error()}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Conversation{}, &APIError{Kind: reliability.KindNetworkFailure, Message: err.Error()}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := extractErrorMessage(res.StatusCode, body)
		return Conversation{}, &APIError{
			Kind:       reliability.Classify(res.StatusCode, msg),
			StatusCode: res.StatusCode,
			Message:    msg,
		}
	}

	var conv Conversation
	if err := json.Unmarshal(body, &conv); err != nil {
		return Conversation{}, &APIError{
			Kind:       reliability.KindMalformedResponse,
			StatusCode: res.StatusCode,
			Message:    fmt.Sprintf("failed to parse response: %s", strings.TrimSpace(string(body))),
		}
	}
	if conv.ConversationID == "" || conv.ConversationURL == "" {
		return Conversation{}, &APIError{
			Kind:       reliability.KindMalformedResponse,
			StatusCode: res.StatusCode,
			Message:    "response missing conversation_id or conversation_url",
		}
	}
	return conv, nil
}

// End terminates a remote conversation. Callers treat any failure as
// non-fatal: leaving the call locally must never block on remote bookkeeping.
func (c *Client) End(ctx context.Context, credential, conversationID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conversations/"+conversationID+"/end", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", credential)

	res, err := c.client.Do(req)
	if err != nil {
		return &APIError{Kind: reliability.KindNetworkFailure, Message: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		msg := extractErrorMessage(res.StatusCode, body)
		return &APIError{
			Kind:       reliability.Classify(res.StatusCode, msg),
			StatusCode: res.StatusCode,
			Message:    msg,
		}
	}
	return nil
}

// extractErrorMessage pulls a human-readable message out of an error body.
// The API is inconsistent about which field carries it, and sometimes sends
// plain text.
func extractErrorMessage(status int, body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, k := range []string{"error", "message", "detail"} {
			if s, ok := obj[k].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP status %d", status)
}

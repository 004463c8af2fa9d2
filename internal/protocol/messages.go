package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeCallJoined        MessageType = "call_joined"
	TypeParticipantJoined MessageType = "participant_joined"
	TypeTrackState        MessageType = "track_state"
	TypeClientControl     MessageType = "client_control"

	TypeSessionReady   MessageType = "session_ready"
	TypeRetryCountdown MessageType = "retry_countdown"
	TypeSetTrack       MessageType = "set_track"
	TypeSessionEnded   MessageType = "session_ended"
	TypeSystemEvent    MessageType = "system_event"
	TypeErrorEvent     MessageType = "error_event"
)

// Control actions accepted from the client.
const (
	ActionEnd         = "end"
	ActionToggleAudio = "toggle_audio"
	ActionToggleVideo = "toggle_video"
	ActionRetry       = "retry"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// CallJoined reports that the browser call object finished joining the room.
type CallJoined struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// ParticipantJoined reports a participant appearing in the room.
type ParticipantJoined struct {
	Type          MessageType `json:"type"`
	SessionID     string      `json:"session_id"`
	ParticipantID string      `json:"participant_id"`
	Local         bool        `json:"local"`
}

// TrackState reports the call object's observed local track state. Track
// state is read back from the call object, never tracked independently, so
// the UI cannot drift from the actual device state.
type TrackState struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Kind      string      `json:"kind"`
	Enabled   bool        `json:"enabled"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

// SessionReady hands the join URL to the call surface.
type SessionReady struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"session_id"`
	ConversationURL string      `json:"conversation_url"`
	TherapistName   string      `json:"therapist_name"`
	StartVideoOff   bool        `json:"start_video_off"`
	StartAudioOff   bool        `json:"start_audio_off"`
}

// RetryCountdown ticks once per second while a backoff delay runs.
type RetryCountdown struct {
	Type        MessageType `json:"type"`
	SecondsLeft int         `json:"seconds_left"`
	Attempt     int         `json:"attempt"`
	MaxAttempts int         `json:"max_attempts"`
}

// SetTrack commands the call object to change a local track.
type SetTrack struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Kind      string      `json:"kind"`
	Enabled   bool        `json:"enabled"`
}

type SessionEnded struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"session_id"`
	Reason          string      `json:"reason"`
	DurationSeconds int         `json:"duration_seconds"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

// ErrorEvent replaces the session surface with a remedy card. Remedy tells
// the UI which fix to offer (billing link, settings link, retry, persona
// picker).
type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Remedy    string      `json:"remedy"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeCallJoined:
		var msg CallJoined
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid call_joined")
		}
		return msg, nil
	case TypeParticipantJoined:
		var msg ParticipantJoined
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.ParticipantID == "" {
			return nil, errors.New("invalid participant_joined")
		}
		return msg, nil
	case TypeTrackState:
		var msg TrackState
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || (msg.Kind != "audio" && msg.Kind != "video") {
			return nil, errors.New("invalid track_state")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

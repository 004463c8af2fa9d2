package httpapi

import (
	"context"
	"sync"

	"github.com/rohitr8j/video-conversation/internal/protocol"
	"github.com/rohitr8j/video-conversation/internal/rtc"
)

// wsRoom bridges the call-surface adapter to the browser over the websocket.
// The browser owns the actual WebRTC call object: it joins when it receives
// session_ready and tears down when it receives session_ended, so Join, Leave
// and Destroy carry no wire traffic of their own. Track commands are
// forwarded as set_track messages.
type wsRoom struct {
	outbound chan<- any

	mu        sync.Mutex
	sessionID string
}

var _ rtc.RoomClient = (*wsRoom)(nil)

func newWSRoom(outbound chan<- any) *wsRoom {
	return &wsRoom{outbound: outbound}
}

func (r *wsRoom) setSessionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

func (r *wsRoom) currentSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *wsRoom) Join(_ context.Context, _ string, _ rtc.JoinOptions) error {
	return nil
}

func (r *wsRoom) Leave() error { return nil }

func (r *wsRoom) Destroy() error { return nil }

func (r *wsRoom) SetLocalVideo(enabled bool) {
	r.command("video", enabled)
}

func (r *wsRoom) SetLocalAudio(enabled bool) {
	r.command("audio", enabled)
}

func (r *wsRoom) command(kind string, enabled bool) {
	msg := protocol.SetTrack{
		Type:      protocol.TypeSetTrack,
		SessionID: r.currentSessionID(),
		Kind:      kind,
		Enabled:   enabled,
	}
	select {
	case r.outbound <- msg:
	default:
		// Writer is gone or saturated; the next track_state report resyncs.
	}
}

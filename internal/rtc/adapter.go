package rtc

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// JoinOptions mirrors the vendor call object's join flags.
type JoinOptions struct {
	StartVideoOff bool
	StartAudioOff bool
}

// RoomClient is the external WebRTC call object contract. It is consumed,
// not defined, by this package; the real implementation lives on the other
// side of the session control channel.
type RoomClient interface {
	Join(ctx context.Context, roomURL string, opts JoinOptions) error
	Leave() error
	Destroy() error
	SetLocalVideo(enabled bool)
	SetLocalAudio(enabled bool)
}

// Adapter bridges an established session's join URL to the call object
// lifecycle: join with audio muted, unmute after the remote persona has had a
// moment to settle, tear down unconditionally at the end.
type Adapter struct {
	room       RoomClient
	graceDelay time.Duration

	mu         sync.Mutex
	audioTimer *time.Timer
	remoteSeen bool
	tornDown   bool
}

func NewAdapter(room RoomClient, graceDelay time.Duration) *Adapter {
	if graceDelay <= 0 {
		graceDelay = 2 * time.Second
	}
	return &Adapter{room: room, graceDelay: graceDelay}
}

// Join enters the room with video on and audio off. Audio stays off until the
// remote participant is confirmed present so nothing is transmitted during
// the persona's own connection handshake.
func (a *Adapter) Join(ctx context.Context, roomURL string) error {
	if err := a.room.Join(ctx, roomURL, JoinOptions{StartVideoOff: false, StartAudioOff: true}); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	a.room.SetLocalVideo(true)
	a.room.SetLocalAudio(false)
	return nil
}

// RemoteParticipantJoined arms the one-shot grace timer on the first remote
// participant; later arrivals are ignored.
func (a *Adapter) RemoteParticipantJoined() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.remoteSeen || a.tornDown {
		return
	}
	a.remoteSeen = true
	a.audioTimer = time.AfterFunc(a.graceDelay, func() {
		a.mu.Lock()
		tornDown := a.tornDown
		a.mu.Unlock()
		if !tornDown {
			a.room.SetLocalAudio(true)
		}
	})
}

// SetLocalAudio passes a mute/unmute toggle straight through to the call
// object. State is read back from the call object's own track observation.
func (a *Adapter) SetLocalAudio(enabled bool) {
	a.room.SetLocalAudio(enabled)
}

// SetLocalVideo passes a camera toggle straight through to the call object.
func (a *Adapter) SetLocalVideo(enabled bool) {
	a.room.SetLocalVideo(enabled)
}

// Teardown leaves then destroys the call object. It runs regardless of
// whether the remote end call succeeded and is safe to call more than once.
func (a *Adapter) Teardown() {
	a.mu.Lock()
	if a.tornDown {
		a.mu.Unlock()
		return
	}
	a.tornDown = true
	if a.audioTimer != nil {
		a.audioTimer.Stop()
		a.audioTimer = nil
	}
	a.mu.Unlock()

	_ = a.room.Leave()
	_ = a.room.Destroy()
}

package rtc

import (
	"context"
	"sync"
)

// MockRoom is a RoomClient double that records every command it receives.
type MockRoom struct {
	mu sync.Mutex

	JoinErr error

	joinedURL  string
	joinOpts   JoinOptions
	audioCalls []bool
	videoCalls []bool
	leaves     int
	destroys   int
}

func NewMockRoom() *MockRoom {
	return &MockRoom{}
}

func (m *MockRoom) Join(_ context.Context, roomURL string, opts JoinOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.JoinErr != nil {
		return m.JoinErr
	}
	m.joinedURL = roomURL
	m.joinOpts = opts
	return nil
}

func (m *MockRoom) Leave() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves++
	return nil
}

func (m *MockRoom) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroys++
	return nil
}

func (m *MockRoom) SetLocalVideo(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoCalls = append(m.videoCalls, enabled)
}

func (m *MockRoom) SetLocalAudio(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioCalls = append(m.audioCalls, enabled)
}

func (m *MockRoom) JoinedURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinedURL
}

func (m *MockRoom) JoinOpts() JoinOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinOpts
}

func (m *MockRoom) AudioCalls() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.audioCalls...)
}

func (m *MockRoom) VideoCalls() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.videoCalls...)
}

func (m *MockRoom) Leaves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaves
}

func (m *MockRoom) Destroys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroys
}

package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rohitr8j/video-conversation/internal/catalog"
	"github.com/rohitr8j/video-conversation/internal/observability"
	"github.com/rohitr8j/video-conversation/internal/protocol"
	"github.com/rohitr8j/video-conversation/internal/reliability"
	"github.com/rohitr8j/video-conversation/internal/rtc"
	"github.com/rohitr8j/video-conversation/internal/session"
	"github.com/rohitr8j/video-conversation/internal/store"
	"github.com/rohitr8j/video-conversation/internal/tavus"
)

// fakeAPI scripts one error per create call; calls past the script succeed.
type fakeAPI struct {
	mu      sync.Mutex
	script  []error
	conv    tavus.Conversation
	creates []time.Time
	ends    []string

	blockUntilCancel bool
}

func newFakeAPI(script ...error) *fakeAPI {
	return &fakeAPI{
		script: script,
		conv: tavus.Conversation{
			ConversationID:  "conv-1",
			ConversationURL: "https://rooms.example/conv-1",
			Status:          "active",
		},
	}
}

func (f *fakeAPI) Create(ctx context.Context, _, _, _, _ string) (tavus.Conversation, error) {
	f.mu.Lock()
	n := len(f.creates)
	f.creates = append(f.creates, time.Now())
	var err error
	if n < len(f.script) {
		err = f.script[n]
	}
	block := f.blockUntilCancel
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return f.conv, nil
	}
	if err != nil {
		return tavus.Conversation{}, err
	}
	return f.conv, nil
}

func (f *fakeAPI) End(_ context.Context, _, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends = append(f.ends, conversationID)
	return nil
}

func (f *fakeAPI) createTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.creates...)
}

func (f *fakeAPI) endedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ends...)
}

func testCatalog() *catalog.MemoryStore {
	return catalog.NewMemoryStore(
		[]catalog.Therapist{{
			ID:          "t1",
			Name:        "Dr. Sarah Chen",
			Title:       "Clinical Psychologist",
			Specialties: []string{"Anxiety", "Stress Management"},
			PersonaRef:  "p-123",
			Approach:    "warm and evidence-based",
		}},
		[]catalog.Topic{{
			ID:          "anxiety",
			Name:        "Anxiety",
			Description: "managing anxious thoughts and worry",
		}},
	)
}

func newTestController(t *testing.T, namespace string, api ConversationAPI, cooldown time.Duration, opts Options) (*Controller, *session.Guard, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SetToken(context.Background(), "test-token"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	guard := session.NewGuard(cooldown, time.Hour, opts.MaxRetries, st)
	metrics := observability.NewMetrics(namespace)
	return New(guard, api, st, testCatalog(), metrics, opts), guard, st
}

var errConcurrency = &tavus.APIError{
	Kind:       reliability.KindConcurrencyLimit,
	StatusCode: 400,
	Message:    "User has reached maximum concurrent conversations",
}

var errCredits = &tavus.APIError{
	Kind:       reliability.KindInsufficientCredits,
	StatusCode: 402,
	Message:    "Insufficient conversational credits",
}

func TestEstablishRetriesConcurrencyLimitWithSchedule(t *testing.T) {
	api := newFakeAPI(errConcurrency, errConcurrency, errConcurrency, errConcurrency)
	base := 20 * time.Millisecond
	c, guard, _ := newTestController(t, "ctl_sched", api, 0, Options{
		MaxRetries:     3,
		RetryBaseDelay: base,
		RetryMaxDelay:  4 * base,
	})

	var countdowns []protocol.RetryCountdown
	_, err := c.Establish(context.Background(), StartRequest{TherapistID: "t1"}, func(msg any) {
		if cd, ok := msg.(protocol.RetryCountdown); ok {
			countdowns = append(countdowns, cd)
		}
	})
	if err == nil {
		t.Fatalf("Establish() error = nil, want terminal concurrency error")
	}
	var apiErr *tavus.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != reliability.KindConcurrencyLimit {
		t.Fatalf("Establish() error = %v, want concurrency_limit", err)
	}

	times := api.createTimes()
	if len(times) != 4 {
		t.Fatalf("create calls = %d, want initial attempt plus 3 retries", len(times))
	}
	// Doubling schedule capped at 4x base: base, 2*base, 4*base.
	wantGaps := []time.Duration{base, 2 * base, 4 * base}
	for i, want := range wantGaps {
		got := times[i+1].Sub(times[i])
		if got < want {
			t.Fatalf("gap %d = %v, want at least %v", i, got, want)
		}
	}

	if len(countdowns) < 3 {
		t.Fatalf("retry countdowns = %d, want at least one per retry", len(countdowns))
	}
	seen := map[int]bool{}
	for _, cd := range countdowns {
		seen[cd.Attempt] = true
		if cd.MaxAttempts != 3 {
			t.Fatalf("MaxAttempts = %d, want 3", cd.MaxAttempts)
		}
	}
	for attempt := 1; attempt <= 3; attempt++ {
		if !seen[attempt] {
			t.Fatalf("no countdown observed for retry %d", attempt)
		}
	}

	if guard.IsCreating() {
		t.Fatalf("IsCreating() = true after terminal failure")
	}
	if guard.HasActive() {
		t.Fatalf("HasActive() = true after terminal failure")
	}
}

// slowTokenStore delays credential reads the way a remote Postgres would,
// widening the window between admission and commit.
type slowTokenStore struct {
	*store.InMemoryStore
	delay time.Duration
}

func (s *slowTokenStore) Token(ctx context.Context) (string, error) {
	time.Sleep(s.delay)
	return s.InMemoryStore.Token(ctx)
}

func TestEstablishSerializesConcurrentAttempts(t *testing.T) {
	api := newFakeAPI()
	st := &slowTokenStore{InMemoryStore: store.NewInMemoryStore(), delay: 50 * time.Millisecond}
	if err := st.SetToken(context.Background(), "test-token"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	guard := session.NewGuard(0, time.Hour, 3, st)
	metrics := observability.NewMetrics("ctl_concurrent")
	c := New(guard, api, st, testCatalog(), metrics, Options{})

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Establish(context.Background(), StartRequest{TherapistID: "t1"}, nil)
		}(i)
	}
	wg.Wait()

	var established, denied int
	for _, err := range errs {
		switch {
		case err == nil:
			established++
		case errors.Is(err, ErrCreationInFlight), errors.Is(err, ErrSessionActive):
			denied++
		default:
			t.Fatalf("Establish() error = %v, want admission denial", err)
		}
	}
	if established != 1 || denied != attempts-1 {
		t.Fatalf("established/denied = %d/%d, want 1/%d", established, denied, attempts-1)
	}
	if calls := len(api.createTimes()); calls != 1 {
		t.Fatalf("remote create calls = %d, want exactly 1", calls)
	}
	if cur := guard.Current(); cur == nil || cur.ConversationID != "conv-1" {
		t.Fatalf("guard.Current() = %+v, want the single committed session", cur)
	}
}

func TestEstablishCreditsErrorIsNeverRetried(t *testing.T) {
	api := newFakeAPI(errCredits)
	c, guard, _ := newTestController(t, "ctl_credits", api, 0, Options{
		MaxRetries:     3,
		RetryBaseDelay: 10 * time.Millisecond,
		RetryMaxDelay:  40 * time.Millisecond,
	})

	_, err := c.Establish(context.Background(), StartRequest{TherapistID: "t1"}, nil)
	var apiErr *tavus.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != reliability.KindInsufficientCredits {
		t.Fatalf("Establish() error = %v, want insufficient_credits", err)
	}
	if calls := len(api.createTimes()); calls != 1 {
		t.Fatalf("create calls = %d, want exactly 1", calls)
	}
	if guard.IsCreating() {
		t.Fatalf("IsCreating() = true after credits failure")
	}
}

func TestEstablishCommitsSessionAndMirror(t *testing.T) {
	api := newFakeAPI()
	c, guard, st := newTestController(t, "ctl_commit", api, 0, Options{})

	active, err := c.Establish(context.Background(), StartRequest{TherapistID: "t1", TopicID: "anxiety"}, nil)
	if err != nil {
		t.Fatalf("Establish() error = %v", err)
	}
	if active.ConversationID != "conv-1" || active.ConversationURL != "https://rooms.example/conv-1" {
		t.Fatalf("active = %+v", active)
	}
	if active.TherapistName != "Dr. Sarah Chen" || active.Status != session.StatusActive {
		t.Fatalf("active = %+v", active)
	}

	if cur := guard.Current(); cur == nil || cur.ConversationID != "conv-1" {
		t.Fatalf("guard.Current() = %+v", cur)
	}
	rec, err := st.LoadSession(context.Background())
	if err != nil || rec == nil || rec.ConversationID != "conv-1" || rec.ConversationURL == "" {
		t.Fatalf("mirrored session = %+v, err = %v", rec, err)
	}
}

func TestEstablishRejectsWhileSessionActive(t *testing.T) {
	api := newFakeAPI()
	c, guard, _ := newTestController(t, "ctl_active", api, 0, Options{})

	guard.BeginCreation()
	if err := guard.Commit(context.Background(), session.ActiveSession{
		ConversationID: "existing",
		StartTime:      time.Now().UTC(),
		Status:         session.StatusActive,
	}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	_, err := c.Establish(context.Background(), StartRequest{TherapistID: "t1"}, nil)
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("Establish() error = %v, want ErrSessionActive", err)
	}
	if calls := len(api.createTimes()); calls != 0 {
		t.Fatalf("create calls = %d, want none while a session is active", calls)
	}
}

func TestEstablishRejectsDuringCooldown(t *testing.T) {
	api := newFakeAPI()
	c, guard, _ := newTestController(t, "ctl_cooldown", api, 80*time.Millisecond, Options{})

	guard.BeginCreation()
	if err := guard.Commit(context.Background(), session.ActiveSession{
		ConversationID: "old",
		StartTime:      time.Now().UTC(),
		Status:         session.StatusActive,
	}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	guard.Release(context.Background(), "old")

	_, err := c.Establish(context.Background(), StartRequest{TherapistID: "t1"}, nil)
	var cd *CooldownError
	if !errors.As(err, &cd) || cd.Remaining <= 0 {
		t.Fatalf("Establish() error = %v, want CooldownError with time remaining", err)
	}
	if calls := len(api.createTimes()); calls != 0 {
		t.Fatalf("create calls = %d, want none during cool-down", calls)
	}
}

func TestEstablishRejectsUnknownTherapistLocally(t *testing.T) {
	api := newFakeAPI()
	c, _, _ := newTestController(t, "ctl_unknown", api, 0, Options{})

	_, err := c.Establish(context.Background(), StartRequest{TherapistID: "nope"}, nil)
	var apiErr *tavus.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != reliability.KindLocalValidation {
		t.Fatalf("Establish() error = %v, want local_validation", err)
	}
	if calls := len(api.createTimes()); calls != 0 {
		t.Fatalf("create calls = %d, want zero network calls", calls)
	}
}

func TestEstablishEndsConversationCreatedAfterCancel(t *testing.T) {
	api := newFakeAPI()
	api.blockUntilCancel = true
	c, guard, _ := newTestController(t, "ctl_cancel", api, 0, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Establish(ctx, StartRequest{TherapistID: "t1"}, nil)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Establish() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Establish() did not return after cancel")
	}

	if ends := api.endedIDs(); len(ends) != 1 || ends[0] != "conv-1" {
		t.Fatalf("ended conversations = %v, want the abandoned create ended", ends)
	}
	if guard.IsCreating() || guard.HasActive() {
		t.Fatalf("guard still holds state after cancel")
	}
}

func TestRunUserEndTearsEverythingDown(t *testing.T) {
	api := newFakeAPI()
	c, guard, st := newTestController(t, "ctl_run_end", api, 0, Options{
		AudioGraceDelay: 10 * time.Millisecond,
	})

	room := rtc.NewMockRoom()
	inbound := make(chan any, 8)
	outbound := make(chan any, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background(), StartRequest{TherapistID: "t1", TopicID: "anxiety"}, room, inbound, outbound)
	}()

	inbound <- protocol.CallJoined{Type: protocol.TypeCallJoined, SessionID: "conv-1"}
	inbound <- protocol.ParticipantJoined{Type: protocol.TypeParticipantJoined, SessionID: "conv-1", ParticipantID: "remote-1"}
	time.Sleep(40 * time.Millisecond)
	inbound <- protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: "conv-1", Action: protocol.ActionEnd}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not finish")
	}
	close(outbound)

	var sawReady bool
	var ended protocol.SessionEnded
	for msg := range outbound {
		switch m := msg.(type) {
		case protocol.SessionReady:
			sawReady = true
			if m.ConversationURL != "https://rooms.example/conv-1" || !m.StartAudioOff || m.StartVideoOff {
				t.Fatalf("session_ready = %+v", m)
			}
		case protocol.SessionEnded:
			ended = m
		}
	}
	if !sawReady {
		t.Fatalf("no session_ready emitted")
	}
	if ended.Reason != "user_ended" {
		t.Fatalf("session_ended = %+v, want reason user_ended", ended)
	}

	if ends := api.endedIDs(); len(ends) != 1 || ends[0] != "conv-1" {
		t.Fatalf("remote end calls = %v, want single end for conv-1", ends)
	}
	if room.Leaves() != 1 || room.Destroys() != 1 {
		t.Fatalf("leave/destroy = %d/%d, want 1/1", room.Leaves(), room.Destroys())
	}
	if guard.HasActive() {
		t.Fatalf("guard still active after end")
	}
	sums, err := st.ListSummaries(context.Background(), 10)
	if err != nil || len(sums) != 1 {
		t.Fatalf("summaries = %v, err = %v, want one recorded", sums, err)
	}
	if sums[0].TherapistID != "t1" || sums[0].TopicID != "anxiety" {
		t.Fatalf("summary = %+v", sums[0])
	}

	// Remote participant arrived, so the grace timer should have unmuted.
	var unmuted bool
	for _, enabled := range room.AudioCalls() {
		if enabled {
			unmuted = true
		}
	}
	if !unmuted {
		t.Fatalf("audio never unmuted after remote participant joined")
	}
}

func TestRunEndsSessionAtTimeLimit(t *testing.T) {
	api := newFakeAPI()
	c, guard, _ := newTestController(t, "ctl_run_limit", api, 0, Options{
		SessionMaxDuration: 60 * time.Millisecond,
	})

	room := rtc.NewMockRoom()
	inbound := make(chan any)
	outbound := make(chan any, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background(), StartRequest{TherapistID: "t1"}, room, inbound, outbound)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not hit the session time limit")
	}
	close(outbound)

	var ended *protocol.SessionEnded
	for msg := range outbound {
		if m, ok := msg.(protocol.SessionEnded); ok {
			ended = &m
		}
	}
	if ended == nil || ended.Reason != "time_limit" {
		t.Fatalf("session_ended = %+v, want reason time_limit", ended)
	}
	if guard.HasActive() {
		t.Fatalf("guard still active after time limit")
	}
}

func TestRunEmitsRemedyOnTerminalFailure(t *testing.T) {
	api := newFakeAPI(errCredits)
	c, _, _ := newTestController(t, "ctl_run_err", api, 0, Options{})

	room := rtc.NewMockRoom()
	inbound := make(chan any)
	outbound := make(chan any, 8)

	err := c.Run(context.Background(), StartRequest{TherapistID: "t1"}, room, inbound, outbound)
	if err == nil {
		t.Fatalf("Run() error = nil, want credits failure")
	}
	close(outbound)

	var evt *protocol.ErrorEvent
	for msg := range outbound {
		if m, ok := msg.(protocol.ErrorEvent); ok {
			evt = &m
		}
	}
	if evt == nil {
		t.Fatalf("no error_event emitted")
	}
	if evt.Code != string(reliability.KindInsufficientCredits) || evt.Remedy != "add_credits" || evt.Retryable {
		t.Fatalf("error_event = %+v", evt)
	}
	if room.Leaves() != 0 {
		t.Fatalf("room touched despite failed establish")
	}
}

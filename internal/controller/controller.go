package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rohitr8j/video-conversation/internal/catalog"
	"github.com/rohitr8j/video-conversation/internal/observability"
	"github.com/rohitr8j/video-conversation/internal/protocol"
	"github.com/rohitr8j/video-conversation/internal/reliability"
	"github.com/rohitr8j/video-conversation/internal/rtc"
	"github.com/rohitr8j/video-conversation/internal/session"
	"github.com/rohitr8j/video-conversation/internal/store"
	"github.com/rohitr8j/video-conversation/internal/tavus"
)

// ConversationAPI is the remote conversation surface the controller drives.
// *tavus.Client satisfies it; tests substitute a scripted double.
type ConversationAPI interface {
	Create(ctx context.Context, credential, personaRef, greeting, conversationalContext string) (tavus.Conversation, error)
	End(ctx context.Context, credential, conversationID string) error
}

// Admission failures surfaced before any network call.
var (
	ErrSessionActive    = errors.New("another session is already active")
	ErrCreationInFlight = errors.New("a session is already being created")
)

// CooldownError rejects a start attempt that arrived before the post-session
// cool-down cleared.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("session cool-down active, retry in %s", e.Remaining.Round(time.Second))
}

// StartRequest selects who to talk to and, optionally, about what.
type StartRequest struct {
	TherapistID string
	TopicID     string
}

// Options carries the timing knobs so tests can run the full retry schedule
// in milliseconds.
type Options struct {
	MaxRetries         int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	SessionMaxDuration time.Duration
	AudioGraceDelay    time.Duration
}

// Controller owns the session lifecycle: admission, conversation creation
// with bounded retries, the in-call loop, and teardown. One Run drives one
// websocket connection.
type Controller struct {
	guard   *session.Guard
	api     ConversationAPI
	store   store.Store
	catalog catalog.Store
	metrics *observability.Metrics
	opts    Options
}

func New(guard *session.Guard, api ConversationAPI, st store.Store, cat catalog.Store, metrics *observability.Metrics, opts Options) *Controller {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 5 * time.Second
	}
	if opts.RetryMaxDelay < opts.RetryBaseDelay {
		opts.RetryMaxDelay = 30 * time.Second
	}
	if opts.SessionMaxDuration <= 0 {
		opts.SessionMaxDuration = 30 * time.Minute
	}
	if opts.AudioGraceDelay <= 0 {
		opts.AudioGraceDelay = 2 * time.Second
	}
	return &Controller{
		guard:   guard,
		api:     api,
		store:   st,
		catalog: cat,
		metrics: metrics,
		opts:    opts,
	}
}

// Establish runs admission and the create-with-retry loop, committing the
// session on success. notify, when non-nil, receives retry countdown messages
// while a backoff delay runs. Only the remote concurrency cap is retried;
// every other failure is terminal for this attempt.
func (c *Controller) Establish(ctx context.Context, req StartRequest, notify func(msg any)) (session.ActiveSession, error) {
	therapist, ok := c.catalog.TherapistByID(req.TherapistID)
	if !ok {
		return session.ActiveSession{}, &tavus.APIError{
			Kind:    reliability.KindLocalValidation,
			Message: fmt.Sprintf("unknown therapist %q", req.TherapistID),
		}
	}
	var topic *catalog.Topic
	if req.TopicID != "" {
		tp, ok := c.catalog.TopicByID(req.TopicID)
		if !ok {
			return session.ActiveSession{}, &tavus.APIError{
				Kind:    reliability.KindLocalValidation,
				Message: fmt.Sprintf("unknown topic %q", req.TopicID),
			}
		}
		topic = &tp
	}

	// Admission and the creating flag must be one atomic step: a check
	// followed by a separate BeginCreation leaves a window where two
	// concurrent attempts both pass and both create remote conversations.
	if !c.guard.TryBeginCreation() {
		c.metrics.CreateAttempts.WithLabelValues("denied").Inc()
		if c.guard.IsCreating() {
			return session.ActiveSession{}, ErrCreationInFlight
		}
		if c.guard.HasActive() {
			return session.ActiveSession{}, ErrSessionActive
		}
		return session.ActiveSession{}, &CooldownError{Remaining: c.guard.CooldownRemaining()}
	}

	token, err := c.store.Token(ctx)
	if err != nil {
		c.guard.ResetCreation()
		return session.ActiveSession{}, fmt.Errorf("read credential: %w", err)
	}

	greeting := catalog.Greeting(therapist, topic)
	conversationalContext := catalog.ConversationalContext(therapist, topic)

	for {
		c.metrics.CreateAttempts.WithLabelValues("attempt").Inc()
		conv, err := c.api.Create(ctx, token, therapist.PersonaRef, greeting, conversationalContext)
		if err == nil {
			if ctx.Err() != nil {
				// The caller went away while the create was in flight. The
				// remote conversation exists but nobody will ever join it,
				// so end it now instead of letting it hold the concurrency
				// slot until the provider times it out.
				endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				if endErr := c.api.End(endCtx, token, conv.ConversationID); endErr != nil {
					log.Printf("controller: ending abandoned conversation %s: %v", conv.ConversationID, endErr)
				}
				c.guard.ResetCreation()
				return session.ActiveSession{}, ctx.Err()
			}

			active := session.ActiveSession{
				ConversationID:  conv.ConversationID,
				ConversationURL: conv.ConversationURL,
				TherapistID:     therapist.ID,
				TopicID:         req.TopicID,
				PersonaRef:      therapist.PersonaRef,
				TherapistName:   therapist.Name,
				StartTime:       time.Now().UTC(),
				Status:          session.StatusActive,
			}
			if err := c.guard.Commit(ctx, active); err != nil {
				log.Printf("controller: session mirror write failed: %v", err)
			}
			c.metrics.CreateAttempts.WithLabelValues("established").Inc()
			c.metrics.SessionEvents.WithLabelValues("session_started").Inc()
			c.metrics.ActiveSessions.Set(1)
			return active, nil
		}

		kind := classify(err)
		c.metrics.APIErrors.WithLabelValues(string(kind)).Inc()

		retries := c.guard.RetryCount()
		if !reliability.IsRetryable(kind) || retries >= c.opts.MaxRetries || ctx.Err() != nil {
			c.guard.ResetCreation()
			c.metrics.CreateAttempts.WithLabelValues("terminal_error").Inc()
			return session.ActiveSession{}, err
		}

		attempt := c.guard.IncrementRetry()
		delay := reliability.ExponentialBackoff(attempt-1, c.opts.RetryBaseDelay, c.opts.RetryMaxDelay)
		c.metrics.CreateAttempts.WithLabelValues("retry_scheduled").Inc()
		if err := c.waitRetry(ctx, delay, attempt, notify); err != nil {
			c.guard.ResetCreation()
			return session.ActiveSession{}, err
		}
	}
}

// waitRetry sleeps out a backoff delay, emitting a countdown message roughly
// once per second so the session surface can show progress.
func (c *Controller) waitRetry(ctx context.Context, delay time.Duration, attempt int, notify func(msg any)) error {
	deadline := time.Now().Add(delay)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if notify != nil {
			notify(protocol.RetryCountdown{
				Type:        protocol.TypeRetryCountdown,
				SecondsLeft: int((remaining + time.Second - 1) / time.Second),
				Attempt:     attempt,
				MaxAttempts: c.opts.MaxRetries,
			})
		}
		step := remaining
		if step > time.Second {
			step = time.Second
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Terminate ends the remote conversation best-effort, releases the guard and
// records a summary. It never fails: remote bookkeeping must not block a
// local hang-up, so errors are logged and swallowed.
func (c *Controller) Terminate(ctx context.Context, active session.ActiveSession, reason string) store.SessionSummary {
	// The caller's context is often already cancelled (websocket closed);
	// teardown still has to reach the remote API and the store.
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	token, err := c.store.Token(endCtx)
	if err != nil {
		log.Printf("controller: read credential during teardown: %v", err)
	}
	if token != "" && active.ConversationID != "" {
		if err := c.api.End(endCtx, token, active.ConversationID); err != nil {
			log.Printf("controller: remote end for %s failed: %v", active.ConversationID, err)
		}
	}
	c.guard.Release(endCtx, active.ConversationID)

	now := time.Now().UTC()
	summary := store.SessionSummary{
		ID:              uuid.NewString(),
		TherapistID:     active.TherapistID,
		TherapistName:   active.TherapistName,
		TopicID:         active.TopicID,
		StartedAt:       active.StartTime,
		EndedAt:         now,
		DurationSeconds: int(now.Sub(active.StartTime).Seconds()),
	}
	if err := c.store.SaveSummary(endCtx, summary); err != nil {
		log.Printf("controller: save session summary: %v", err)
	}

	c.metrics.ActiveSessions.Set(0)
	c.metrics.SessionEvents.WithLabelValues("session_ended_" + reason).Inc()
	c.metrics.ObserveSessionDuration(now.Sub(active.StartTime))
	return summary
}

// Run drives a full session lifecycle for one websocket connection: establish
// the conversation, hand the join URL to the call surface, pump call events
// until something ends the session, then tear everything down.
func (c *Controller) Run(ctx context.Context, req StartRequest, room rtc.RoomClient, inbound <-chan any, outbound chan<- any) error {
	notify := func(msg any) { c.send(outbound, msg) }

	active, err := c.Establish(ctx, req, notify)
	if err != nil {
		c.send(outbound, errorEventFor("", err))
		return err
	}
	return c.runEstablished(ctx, active, room, inbound, outbound)
}

// Resume re-attaches a connection to an already-established session, e.g.
// one rehydrated from the mirror after a restart.
func (c *Controller) Resume(ctx context.Context, active session.ActiveSession, room rtc.RoomClient, inbound <-chan any, outbound chan<- any) error {
	c.metrics.SessionEvents.WithLabelValues("session_resumed").Inc()
	c.metrics.ActiveSessions.Set(1)
	return c.runEstablished(ctx, active, room, inbound, outbound)
}

func (c *Controller) runEstablished(ctx context.Context, active session.ActiveSession, room rtc.RoomClient, inbound <-chan any, outbound chan<- any) error {
	c.send(outbound, protocol.SessionReady{
		Type:            protocol.TypeSessionReady,
		SessionID:       active.ConversationID,
		ConversationURL: active.ConversationURL,
		TherapistName:   active.TherapistName,
		StartVideoOff:   false,
		StartAudioOff:   true,
	})

	adapter := rtc.NewAdapter(room, c.opts.AudioGraceDelay)
	if err := adapter.Join(ctx, active.ConversationURL); err != nil {
		adapter.Teardown()
		summary := c.Terminate(ctx, active, "join_failed")
		c.send(outbound, errorEventFor(active.ConversationID, err))
		c.send(outbound, protocol.SessionEnded{
			Type:            protocol.TypeSessionEnded,
			SessionID:       active.ConversationID,
			Reason:          "join_failed",
			DurationSeconds: summary.DurationSeconds,
		})
		return err
	}

	remaining := c.opts.SessionMaxDuration - time.Since(active.StartTime)
	if remaining < 0 {
		remaining = 0
	}
	limit := time.NewTimer(remaining)
	defer limit.Stop()

	// Track state is whatever the call object last reported, never a local
	// guess. Video starts on and audio muted per the join flags.
	lastAudio, lastVideo := false, true

	endReason := ""
	for endReason == "" {
		select {
		case <-ctx.Done():
			endReason = "connection_closed"
		case <-limit.C:
			endReason = "time_limit"
		case msg, ok := <-inbound:
			if !ok {
				endReason = "connection_closed"
				continue
			}
			switch m := msg.(type) {
			case protocol.CallJoined:
				c.metrics.SessionEvents.WithLabelValues("call_joined").Inc()
			case protocol.ParticipantJoined:
				if !m.Local {
					adapter.RemoteParticipantJoined()
					c.metrics.SessionEvents.WithLabelValues("remote_participant_joined").Inc()
				}
			case protocol.TrackState:
				switch m.Kind {
				case "audio":
					lastAudio = m.Enabled
				case "video":
					lastVideo = m.Enabled
				}
			case protocol.ClientControl:
				switch m.Action {
				case protocol.ActionEnd:
					endReason = "user_ended"
				case protocol.ActionToggleAudio:
					adapter.SetLocalAudio(!lastAudio)
				case protocol.ActionToggleVideo:
					adapter.SetLocalVideo(!lastVideo)
				}
			}
		}
	}

	adapter.Teardown()
	summary := c.Terminate(ctx, active, endReason)
	c.send(outbound, protocol.SessionEnded{
		Type:            protocol.TypeSessionEnded,
		SessionID:       active.ConversationID,
		Reason:          endReason,
		DurationSeconds: summary.DurationSeconds,
	})
	return nil
}

// send delivers a message without ever blocking the control loop; a slow or
// gone consumer loses messages rather than stalling the session.
func (c *Controller) send(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		c.metrics.SessionEvents.WithLabelValues("outbound_dropped").Inc()
	}
}

func classify(err error) reliability.Kind {
	var apiErr *tavus.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return reliability.KindRemoteService
}

// errorEventFor maps a failure to the remedy card the UI should show.
func errorEventFor(sessionID string, err error) protocol.ErrorEvent {
	evt := protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Detail:    err.Error(),
	}

	var cd *CooldownError
	switch {
	case errors.As(err, &cd):
		evt.Code = "cooldown_active"
		evt.Source = "session_guard"
		evt.Retryable = true
		evt.Remedy = "wait_and_retry"
	case errors.Is(err, ErrSessionActive), errors.Is(err, ErrCreationInFlight):
		evt.Code = "session_exists"
		evt.Source = "session_guard"
		evt.Remedy = "resume_or_end"
	default:
		kind := classify(err)
		evt.Code = string(kind)
		evt.Source = "conversation_api"
		if kind == reliability.KindLocalValidation {
			evt.Source = "validation"
		}
		evt.Retryable = reliability.IsRetryable(kind)
		evt.Remedy = remedyFor(kind)
	}
	return evt
}

func remedyFor(k reliability.Kind) string {
	switch k {
	case reliability.KindInvalidCredential, reliability.KindForbidden:
		return "update_token"
	case reliability.KindInsufficientCredits:
		return "add_credits"
	case reliability.KindPersonaNotFound:
		return "choose_persona"
	case reliability.KindConcurrencyLimit, reliability.KindRateLimited:
		return "wait_and_retry"
	case reliability.KindLocalValidation:
		return "update_settings"
	default:
		return "try_again"
	}
}

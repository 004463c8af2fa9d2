package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rohitr8j/video-conversation/internal/catalog"
	"github.com/rohitr8j/video-conversation/internal/config"
	"github.com/rohitr8j/video-conversation/internal/controller"
	"github.com/rohitr8j/video-conversation/internal/observability"
	"github.com/rohitr8j/video-conversation/internal/protocol"
	"github.com/rohitr8j/video-conversation/internal/reliability"
	"github.com/rohitr8j/video-conversation/internal/rtc"
	"github.com/rohitr8j/video-conversation/internal/session"
	"github.com/rohitr8j/video-conversation/internal/store"
	"github.com/rohitr8j/video-conversation/internal/tavus"
)

// SessionController drives the session lifecycle for websocket connections
// and HTTP fallbacks.
type SessionController interface {
	Establish(ctx context.Context, req controller.StartRequest, notify func(msg any)) (session.ActiveSession, error)
	Run(ctx context.Context, req controller.StartRequest, room rtc.RoomClient, inbound <-chan any, outbound chan<- any) error
	Resume(ctx context.Context, active session.ActiveSession, room rtc.RoomClient, inbound <-chan any, outbound chan<- any) error
	Terminate(ctx context.Context, active session.ActiveSession, reason string) store.SessionSummary
}

type Server struct {
	cfg        config.Config
	store      store.Store
	catalog    catalog.Store
	guard      *session.Guard
	controller SessionController
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, st store.Store, cat catalog.Store, guard *session.Guard, ctrl SessionController, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		store:      st,
		catalog:    cat,
		guard:      guard,
		controller: ctrl,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections by default: a foreign
				// page must not be able to start or end the user's session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/therapists", s.handleListTherapists)
	r.Get("/v1/therapists/{id}", s.handleGetTherapist)
	r.Get("/v1/topics", s.handleListTopics)

	r.Get("/v1/settings/token", s.handleGetToken)
	r.Put("/v1/settings/token", s.handlePutToken)
	r.Get("/v1/profile", s.handleGetProfile)
	r.Put("/v1/profile", s.handlePutProfile)

	r.Get("/v1/sessions/current", s.handleCurrentSession)
	r.Post("/v1/sessions", s.handleStartSession)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Get("/v1/sessions/ws", s.handleSessionWS)

	r.Get("/v1/journal", s.handleListJournal)
	r.Post("/v1/journal", s.handleAppendJournal)
	r.Get("/v1/summaries", s.handleListSummaries)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Readiness means the store answers; the remote API is checked lazily
	// because a missing token is a valid (if unconfigured) state.
	if _, err := s.store.Token(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleListTherapists(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.Therapists())
}

func (s *Server) handleGetTherapist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	therapist, ok := s.catalog.TherapistByID(id)
	if !ok {
		respondError(w, http.StatusNotFound, "therapist_not_found", "no therapist with id "+id)
		return
	}
	respondJSON(w, http.StatusOK, therapist)
}

func (s *Server) handleListTopics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.Topics())
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.store.Token(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	// The credential itself never leaves the service.
	respondJSON(w, http.StatusOK, map[string]any{"configured": token != ""})
}

func (s *Server) handlePutToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		respondError(w, http.StatusBadRequest, "invalid_token", "token must not be empty")
		return
	}
	if s.guard.HasActive() {
		// A session created under the old credential cannot be managed with
		// the new one; make the user end it first.
		respondError(w, http.StatusConflict, "session_active", "end the active session before changing the token")
		return
	}
	if err := s.store.SetToken(r.Context(), token); err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"configured": true})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Profile(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p store.Profile
	if err := decodeJSON(r, &p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if p.Age != nil && (*p.Age < 13 || *p.Age > 120) {
		respondError(w, http.StatusBadRequest, "invalid_age", "age must be between 13 and 120")
		return
	}
	if strings.TrimSpace(p.PreferredLanguage) == "" {
		p.PreferredLanguage = store.DefaultProfile().PreferredLanguage
	}
	if err := s.store.SaveProfile(r.Context(), p); err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"session":               s.guard.Current(),
		"is_creating":           s.guard.IsCreating(),
		"can_create_new":        s.guard.CanCreateNew(),
		"cooldown_remaining_ms": s.guard.CooldownRemaining().Milliseconds(),
	})
}

// handleStartSession establishes a session over plain HTTP. The caller still
// opens the websocket afterwards for the in-call control channel; clients that
// cannot hold a socket open during the retry countdown use this instead of
// starting through the socket.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TherapistID string `json:"therapist_id"`
		TopicID     string `json:"topic_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.TherapistID) == "" {
		respondError(w, http.StatusBadRequest, "missing_therapist_id", "therapist_id is required")
		return
	}

	active, err := s.controller.Establish(r.Context(), controller.StartRequest{
		TherapistID: strings.TrimSpace(req.TherapistID),
		TopicID:     strings.TrimSpace(req.TopicID),
	}, nil)
	if err != nil {
		var cd *controller.CooldownError
		var apiErr *tavus.APIError
		switch {
		case errors.As(err, &cd):
			w.Header().Set("Retry-After", strconv.Itoa(int(cd.Remaining.Seconds())+1))
			respondError(w, http.StatusConflict, "cooldown_active", err.Error())
		case errors.Is(err, controller.ErrSessionActive), errors.Is(err, controller.ErrCreationInFlight):
			respondError(w, http.StatusConflict, "session_exists", err.Error())
		case errors.As(err, &apiErr) && apiErr.Kind == reliability.KindLocalValidation:
			respondError(w, http.StatusBadRequest, string(apiErr.Kind), apiErr.Message)
		default:
			respondError(w, http.StatusBadGateway, "create_failed", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusCreated, active)
}

// handleEndSession is the HTTP fallback for ending a session without a live
// websocket, e.g. after a page reload inside the rehydration window.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	cur := s.guard.Current()
	if cur == nil || cur.ConversationID != id {
		respondError(w, http.StatusNotFound, "session_not_found", "no active session with id "+id)
		return
	}
	summary := s.controller.Terminate(r.Context(), *cur, "user_ended")
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.store.ListJournal(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if entries == nil {
		entries = []store.JournalEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAppendJournal(w http.ResponseWriter, r *http.Request) {
	var entry store.JournalEntry
	if err := decodeJSON(r, &entry); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if entry.Mood < 1 || entry.Mood > 5 {
		respondError(w, http.StatusBadRequest, "invalid_mood", "mood must be between 1 and 5")
		return
	}
	if strings.TrimSpace(entry.Entry) == "" {
		respondError(w, http.StatusBadRequest, "invalid_entry", "entry must not be empty")
		return
	}
	entry.ID = ""
	entry.Date = time.Now().UTC()
	if err := s.store.AppendJournal(r.Context(), entry); err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"status": "created"})
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sums, err := s.store.ListSummaries(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if sums == nil {
		sums = []store.SessionSummary{}
	}
	respondJSON(w, http.StatusOK, sums)
}

// handleSessionWS runs one full session per websocket connection. A fresh
// connection starts a new session from the therapist_id/topic_id query
// parameters; if a session is already active (for example rehydrated after a
// restart) the connection re-attaches to it instead.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "session controller not configured")
		return
	}

	req := controller.StartRequest{
		TherapistID: strings.TrimSpace(r.URL.Query().Get("therapist_id")),
		TopicID:     strings.TrimSpace(r.URL.Query().Get("topic_id")),
	}
	resume := s.guard.Current()
	if resume == nil && req.TherapistID == "" {
		respondError(w, http.StatusBadRequest, "missing_therapist_id", "query parameter therapist_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 64)
	outbound := make(chan any, 64)
	room := newWSRoom(outbound)

	runComplete := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		if resume != nil {
			_ = s.controller.Resume(ctx, *resume, room, inbound, outbound)
		} else {
			_ = s.controller.Run(ctx, req, room, inbound, outbound)
		}
		close(runComplete)
		// Let the writer flush the final messages, then drop the connection
		// to unblock the read loop. A new session means a new connection.
		<-writerDone
		cancel()
		_ = conn.Close()
	}()

	go func() {
		defer close(writerDone)
		write := func(msg any) bool {
			if ready, isReady := msg.(protocol.SessionReady); isReady {
				room.setSessionID(ready.SessionID)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.SessionEvents.WithLabelValues("ws_write_error").Inc()
				cancel()
				return false
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
			}
			return true
		}
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				if !write(msg) {
					return
				}
			case <-runComplete:
				// Drain whatever the controller queued before it finished.
				for {
					select {
					case msg := <-outbound:
						if !write(msg) {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: room.currentSessionID(),
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop when saturated.
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runComplete
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.CallJoined:
		return m.Type, true
	case protocol.ParticipantJoined:
		return m.Type, true
	case protocol.TrackState:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.SessionReady:
		return m.Type, true
	case protocol.RetryCountdown:
		return m.Type, true
	case protocol.SetTrack:
		return m.Type, true
	case protocol.SessionEnded:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}

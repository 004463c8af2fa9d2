package app

import (
	"context"
	"fmt"
	"log"

	"github.com/rohitr8j/video-conversation/internal/catalog"
	"github.com/rohitr8j/video-conversation/internal/config"
	"github.com/rohitr8j/video-conversation/internal/controller"
	"github.com/rohitr8j/video-conversation/internal/httpapi"
	"github.com/rohitr8j/video-conversation/internal/observability"
	"github.com/rohitr8j/video-conversation/internal/session"
	"github.com/rohitr8j/video-conversation/internal/store"
	"github.com/rohitr8j/video-conversation/internal/tavus"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Store      store.Store
	Guard      *session.Guard
	Controller *controller.Controller
	Metrics    *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build wires configuration into a runnable service: store, catalog, session
// guard, conversation client, controller and the HTTP API.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	// Seed the credential from the environment on first run. A token saved
	// through the settings API wins afterwards.
	if cfg.TavusAPIKey != "" {
		existing, err := st.Token(ctx)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("read stored token: %w", err)
		}
		if existing == "" {
			if err := st.SetToken(ctx, cfg.TavusAPIKey); err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("seed token: %w", err)
			}
		}
	}

	cat := catalog.NewMemoryStore(catalog.SeedTherapists(), catalog.SeedTopics())

	guard := session.NewGuard(cfg.SessionCooldown, cfg.SessionRehydrateWindow, cfg.RetryMaxAttempts, st)
	if err := guard.Rehydrate(ctx); err != nil {
		log.Printf("session rehydrate: %v", err)
	}
	if cur := guard.Current(); cur != nil {
		log.Printf("rehydrated session %s with %s", cur.ConversationID, cur.TherapistName)
		metrics.ActiveSessions.Set(1)
	}

	client := tavus.NewClient(cfg.TavusAPIBaseURL)
	ctrl := controller.New(guard, client, st, cat, metrics, controller.Options{
		MaxRetries:         cfg.RetryMaxAttempts,
		RetryBaseDelay:     cfg.RetryBaseDelay,
		RetryMaxDelay:      cfg.RetryMaxDelay,
		SessionMaxDuration: cfg.SessionMaxDuration,
		AudioGraceDelay:    cfg.AudioGraceDelay,
	})

	api := httpapi.New(cfg, st, cat, guard, ctrl, metrics)

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Store:      st,
		Guard:      guard,
		Controller: ctrl,
		Metrics:    metrics,
		Cleanup:    st.Close,
	}, nil
}

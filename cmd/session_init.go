package main

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/soiltales/soiltales-cli/internal/session"
	"github.com/soiltales/soiltales-cli/internal/store"
	"github.com/soiltales/soiltales-cli/internal/synth"
	"github.com/soiltales/soiltales-cli/pkg/soilapi"
)

// sessionEnv holds the store, gateway, and orchestrator needed by the
// analyze/video/history/serve commands.
type sessionEnv struct {
	Store   *store.RecordStore
	Gateway soilapi.Client
	Session *session.Orchestrator
}

// Close releases resources held by the session environment.
func (se *sessionEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

// initSession wires the record store, backend gateway, and fallback
// synthesizer into an orchestrator. Callers should defer env.Close().
func initSession() (*sessionEnv, error) {
	st, err := initStore()
	if err != nil {
		return nil, err
	}

	gatewayOpts := []soilapi.Option{
		soilapi.WithBaseURL(cfg.Backend.BaseURL),
		soilapi.WithTimeout(time.Duration(cfg.Backend.TimeoutSecs) * time.Second),
	}
	if cfg.Backend.AuthToken != "" {
		gatewayOpts = append(gatewayOpts, soilapi.WithAuthToken(cfg.Backend.AuthToken))
	}
	if cfg.Backend.RateLimitRPS > 0 {
		gatewayOpts = append(gatewayOpts, soilapi.WithRateLimit(cfg.Backend.RateLimitRPS, 5))
	}
	gateway := soilapi.NewClient(gatewayOpts...)

	synthesizer := synth.New(synth.WithDelays(
		time.Duration(cfg.Fallback.AnalyzeDelaySecs)*time.Second,
		time.Duration(cfg.Fallback.VideoDelaySecs)*time.Second,
	))

	return &sessionEnv{
		Store:   st,
		Gateway: gateway,
		Session: session.New(gateway, synthesizer, st),
	}, nil
}

// initStore opens the durable local history.
func initStore() (*store.RecordStore, error) {
	medium, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return store.New(medium,
		store.WithCapacity(cfg.Store.Capacity),
		store.WithBytesLimit(cfg.Store.BytesLimit),
	), nil
}

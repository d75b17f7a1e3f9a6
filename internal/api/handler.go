package api

import (
	"presence-tracker-backend/internal/poller"
	"presence-tracker-backend/internal/store"

	"github.com/SherClockHolmes/webpush-go"
)

// Engine is the scheduler surface exposed to the liveness endpoint.
type Engine interface {
	State() poller.State
	Polling() bool
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store           store.Store
	engine          Engine
	webpush         *webpush.Options
	heatmapLookback int
}

// NewHandler creates a new API handler. heatmapLookback is the default
// number of closed sessions the heatmap endpoint aggregates.
func NewHandler(s store.Store, engine Engine, webpushOptions *webpush.Options, heatmapLookback int) *Handler {
	if heatmapLookback <= 0 {
		heatmapLookback = 30
	}
	return &Handler{
		store:           s,
		engine:          engine,
		webpush:         webpushOptions,
		heatmapLookback: heatmapLookback,
	}
}

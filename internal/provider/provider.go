// Package provider defines the presence provider boundary consumed by the
// polling engine, plus an HTTP adapter for a presence gateway.
package provider

import (
	"context"
	"errors"

	"presence-tracker-backend/internal/ident"
	"presence-tracker-backend/internal/model"
)

// Sentinel error kinds. Callers classify failures with errors.Is; every
// error returned by a Client wraps exactly one of these.
var (
	// ErrResolution means the identifier could not be resolved to an
	// account. The target is skipped for this cycle.
	ErrResolution = errors.New("presence: resolution failed")

	// ErrRateLimited means the provider refused the lookup due to flood
	// control. Retryable; the scheduler stretches the next inter-batch
	// delay when it sees this.
	ErrRateLimited = errors.New("presence: rate limited")

	// ErrConnection means the provider connection is down or the stored
	// credentials are no longer accepted. The scheduler tears the client
	// down and reconnects with backoff.
	ErrConnection = errors.New("presence: connection lost")
)

// Entity is the provider's view of one account.
type Entity struct {
	ID     int64
	Status model.Status
}

// Client is the presence provider adapter. The scheduler owns the client
// exclusively and passes it to the batch fetcher; nothing reads it from
// shared state.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsAuthorized(ctx context.Context) (bool, error)
	Resolve(ctx context.Context, id ident.Identifier) (Entity, error)
}

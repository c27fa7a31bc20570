package repository

import (
	"context"

	"github.com/garnizeh/introdesk/internal/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
//
// Mutating operations are identifier-addressed: the store resolves the row by
// its unique id column in the same statement that mutates it, so there is no
// read-position/act window. Field-map updates carry the row version the
// caller read; a stale version is rejected with ErrConflict instead of being
// silently overwritten.

// ConnectionFilter narrows connection listings.
type ConnectionFilter struct {
	Status   models.Status
	ClientID string // matches from_user_id when set
}

type ConnectionRepo interface {
	CreateConnection(ctx context.Context, c *models.Connection) error
	GetConnection(ctx context.Context, id string) (*models.Connection, error)
	ListConnections(ctx context.Context, f ConnectionFilter) ([]models.Connection, error)

	// UpdateConnectionFields applies a logical field map to one row.
	// Unknown field names fail with ErrValidation; a stale expectedVersion
	// fails with a *ConflictError.
	UpdateConnectionFields(ctx context.Context, id string, fields map[string]any, expectedVersion int64) error

	// TransitionConnection atomically moves a connection from any of the
	// allowed statuses to the target status, applying extra fields in the
	// same statement. It reports false when no row matched the guard; the
	// caller re-reads to tell NotFound, already-done, and a genuine
	// precondition failure apart.
	TransitionConnection(ctx context.Context, id string, from []models.Status, to models.Status, fields map[string]any) (bool, error)

	DeleteConnection(ctx context.Context, id string) error
}

type DealRepo interface {
	CreateDeal(ctx context.Context, d *models.Deal) error
	GetDeal(ctx context.Context, id string) (*models.Deal, error)
	ListDeals(ctx context.Context, clientID string) ([]models.Deal, error)
	UpdateDealFields(ctx context.Context, id string, fields map[string]any, expectedVersion int64) error
	UpdateDealStage(ctx context.Context, id, stage string) error
	DeleteDeal(ctx context.Context, id string) error
}

type SignalRepo interface {
	GetSignal(ctx context.Context, id string) (*models.Signal, error)
	ListSignals(ctx context.Context, clientID string, publishedOnly bool) ([]models.Signal, error)
}

type ClientRepo interface {
	CreateClient(ctx context.Context, c *models.Client) error
	GetClientByID(ctx context.Context, id string) (*models.Client, error)
	GetClientByEmail(ctx context.Context, email string) (*models.Client, error)
}

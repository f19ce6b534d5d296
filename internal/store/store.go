package store

import (
	"context"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// Store defines the persistence interface for scanned codes.
type Store interface {
	// Scanned codes
	CreateCode(ctx context.Context, code *model.ScannedCode) error
	GetCode(ctx context.Context, id string) (*model.ScannedCode, error)
	ListCodes(ctx context.Context, filter model.ScanFilter) ([]*model.ScannedCode, int, error) // returns codes, total count, error
	ListAllCodes(ctx context.Context) ([]*model.ScannedCode, error)
	DeleteCode(ctx context.Context, id string) error
	ClearScope(ctx context.Context, scope string) (int64, error)

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	ListEvents(ctx context.Context, scope string, afterID int64, limit int) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"solar_dashboard/internal/models"
)

// EventRepo is the append-only plug command journal.
type EventRepo interface {
	Append(ctx context.Context, e models.PlugEvent) error
	List(ctx context.Context, f EventFilter) ([]models.PlugEvent, error)
}

// EventFilter narrows List. Zero values mean "no bound".
type EventFilter struct {
	From time.Time
	To   time.Time
	Type string
	Plug string
}

type Repository struct {
	EventRepo EventRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		EventRepo: NewEventSQLite(db),
	}
}

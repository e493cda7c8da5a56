package repository

import (
	"context"
	"database/sql"
	"time"

	"minicorr/internal/models"
)

// sqliteTimeLayout is how timestamps are stored and compared. A fixed-width
// UTC layout keeps lexical order equal to time order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

type StateRepo interface {
	Save(ctx context.Context, s models.DeviceState) error
	Load(ctx context.Context) (models.DeviceState, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.DeviceEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.DeviceEvent, error)
}

type SampleRepo interface {
	Insert(ctx context.Context, s models.TemperatureSample) (int64, error)
	List(ctx context.Context, from, to time.Time, limit int) ([]models.TemperatureSample, error)
}

type Repository struct {
	StateRepo  StateRepo
	EventRepo  EventRepo
	SampleRepo SampleRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo:  NewStateSQLite(db),
		EventRepo:  NewEventSQLite(db),
		SampleRepo: NewSampleSQLite(db),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

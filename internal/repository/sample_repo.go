package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"minicorr/internal/models"
)

const (
	insertSampleSQL = `
		INSERT INTO temperature_samples (taken_at, raw, value_c)
		VALUES (?, ?, ?)
	`
	selectSamplesSQL = `SELECT id, taken_at, raw, value_c FROM temperature_samples`

	// DefaultSampleLimit caps List when the caller passes no limit.
	DefaultSampleLimit = 1000
)

type SampleSQLite struct {
	db *sql.DB
}

func NewSampleSQLite(db *sql.DB) *SampleSQLite { return &SampleSQLite{db: db} }

// Insert stores one sample and returns its row id.
func (r *SampleSQLite) Insert(ctx context.Context, s models.TemperatureSample) (int64, error) {
	if s.TakenAt.IsZero() {
		s.TakenAt = time.Now()
	}
	var value sql.NullFloat64
	if s.Value != nil {
		value = sql.NullFloat64{Float64: *s.Value, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, insertSampleSQL, formatTime(s.TakenAt), s.Raw, value)
	if err != nil {
		return 0, fmt.Errorf("insert sample: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// List returns the most recent samples in [from, to], newest first.
func (r *SampleSQLite) List(ctx context.Context, from, to time.Time, limit int) ([]models.TemperatureSample, error) {
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		conds = append(conds, "taken_at >= ?")
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		conds = append(conds, "taken_at <= ?")
		args = append(args, formatTime(to))
	}

	q := selectSamplesSQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY taken_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select samples: %w", err)
	}
	defer rows.Close()

	out := make([]models.TemperatureSample, 0, 64)
	for rows.Next() {
		var (
			s     models.TemperatureSample
			value sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.TakenAt, &s.Raw, &value); err != nil {
			return nil, err
		}
		s.TakenAt = s.TakenAt.UTC()
		if value.Valid {
			v := value.Float64
			s.Value = &v
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

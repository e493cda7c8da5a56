package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"minicorr/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

const (
	deviceStateRowID = 1

	insertOrUpdateStateSQL = `
		INSERT INTO device_state (id, host, port, connected, fan_mode, temp_c, low_c, high_c, monitoring, interval_s, logging, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host=excluded.host,
			port=excluded.port,
			connected=excluded.connected,
			fan_mode=excluded.fan_mode,
			temp_c=excluded.temp_c,
			low_c=excluded.low_c,
			high_c=excluded.high_c,
			monitoring=excluded.monitoring,
			interval_s=excluded.interval_s,
			logging=excluded.logging,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT id, host, port, connected, fan_mode, temp_c, low_c, high_c, monitoring, interval_s, logging, updated_at
		FROM device_state WHERE id=?
	`
)

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// Save updates or inserts the device_state row (id always 1).
func (r *StateSQLite) Save(ctx context.Context, s models.DeviceState) error {
	ts := s.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.db.ExecContext(ctx, insertOrUpdateStateSQL,
		deviceStateRowID,
		s.Host,
		s.Port,
		s.Connected,
		s.FanMode,
		nullFloat(s.TemperatureC),
		nullFloat(s.ThresholdLow),
		nullFloat(s.ThresholdHigh),
		s.Monitoring,
		s.IntervalSeconds,
		s.Logging,
		formatTime(ts),
	)
	if err != nil {
		return fmt.Errorf("save device state: %w", err)
	}
	return nil
}

// Load fetches the single device_state row. No row yet yields a zero state.
func (r *StateSQLite) Load(ctx context.Context) (models.DeviceState, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, deviceStateRowID)

	var (
		s            models.DeviceState
		temp, lo, hi sql.NullFloat64
	)
	if err := row.Scan(
		&s.ID,
		&s.Host,
		&s.Port,
		&s.Connected,
		&s.FanMode,
		&temp,
		&lo,
		&hi,
		&s.Monitoring,
		&s.IntervalSeconds,
		&s.Logging,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DeviceState{}, nil
		}
		return models.DeviceState{}, fmt.Errorf("load device state: %w", err)
	}

	s.TemperatureC = floatPtr(temp)
	s.ThresholdLow = floatPtr(lo)
	s.ThresholdHigh = floatPtr(hi)
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

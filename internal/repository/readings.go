package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sudior04/iot-backend/internal/db"
)

const readingColumns = `
	id, device_id, pm25, mq135, mq2, temperature, humidity,
	recorded_at, created_at
`

func scanReading(row pgx.Row) (*db.Reading, error) {
	var rd db.Reading
	err := row.Scan(
		&rd.ID,
		&rd.DeviceID,
		&rd.PM25,
		&rd.MQ135,
		&rd.MQ2,
		&rd.Temperature,
		&rd.Humidity,
		&rd.RecordedAt,
		&rd.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rd, nil
}

func scanReadings(rows pgx.Rows) ([]*db.Reading, error) {
	defer rows.Close()

	var readings []*db.Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return readings, nil
}

// InsertReading persists one reading and returns it with the assigned id.
// Readings are immutable after this point.
func (r *Repository) InsertReading(ctx context.Context, reading *db.Reading) (*db.Reading, error) {
	query := `
		INSERT INTO readings (device_id, pm25, mq135, mq2, temperature, humidity, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + readingColumns

	stored, err := scanReading(r.pool.QueryRow(ctx, query,
		reading.DeviceID,
		reading.PM25,
		reading.MQ135,
		reading.MQ2,
		reading.Temperature,
		reading.Humidity,
		reading.RecordedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert reading: %w", err)
	}
	return stored, nil
}

// LatestReading returns the newest reading for a device, or nil when the
// device has none.
func (r *Repository) LatestReading(ctx context.Context, deviceID uuid.UUID) (*db.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	reading, err := scanReading(r.pool.QueryRow(ctx, query, deviceID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reading: %w", err)
	}
	return reading, nil
}

// ReadingHistory returns up to limit readings, newest first
func (r *Repository) ReadingHistory(ctx context.Context, deviceID uuid.UUID, limit int) ([]*db.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reading history: %w", err)
	}
	return scanReadings(rows)
}

// ReadingsInRange returns up to limit readings within [start, end],
// newest first.
func (r *Repository) ReadingsInRange(ctx context.Context, deviceID uuid.UUID, start, end time.Time, limit int) ([]*db.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings
		WHERE device_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, deviceID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings in range: %w", err)
	}
	return scanReadings(rows)
}

// ReadingsSince returns all readings created at or after the given time,
// oldest first. Used for threshold suggestion.
func (r *Repository) ReadingsSince(ctx context.Context, deviceID uuid.UUID, since time.Time) ([]*db.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings
		WHERE device_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, deviceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings since: %w", err)
	}
	return scanReadings(rows)
}

// MetricAggregate holds avg/min/max for one metric over a window. All
// fields are nil when the metric had no non-null values in the window.
type MetricAggregate struct {
	Avg *float64
	Min *float64
	Max *float64
}

// ReadingStats holds per-metric aggregates over a time window
type ReadingStats struct {
	PM25        MetricAggregate
	MQ135       MetricAggregate
	MQ2         MetricAggregate
	Temperature MetricAggregate
	Humidity    MetricAggregate
	Count       int64
}

// ReadingStatistics computes per-metric avg/min/max and the record count
// over [start, end]. SQL aggregates skip NULLs, so a metric with no values
// in range yields nil aggregates rather than zeros.
func (r *Repository) ReadingStatistics(ctx context.Context, deviceID uuid.UUID, start, end time.Time) (*ReadingStats, error) {
	query := `
		SELECT
			AVG(pm25), MIN(pm25), MAX(pm25),
			AVG(mq135), MIN(mq135), MAX(mq135),
			AVG(mq2), MIN(mq2), MAX(mq2),
			AVG(temperature), MIN(temperature), MAX(temperature),
			AVG(humidity), MIN(humidity), MAX(humidity),
			COUNT(*)
		FROM readings
		WHERE device_id = $1 AND created_at >= $2 AND created_at <= $3
	`

	var stats ReadingStats
	err := r.pool.QueryRow(ctx, query, deviceID, start, end).Scan(
		&stats.PM25.Avg, &stats.PM25.Min, &stats.PM25.Max,
		&stats.MQ135.Avg, &stats.MQ135.Min, &stats.MQ135.Max,
		&stats.MQ2.Avg, &stats.MQ2.Min, &stats.MQ2.Max,
		&stats.Temperature.Avg, &stats.Temperature.Min, &stats.Temperature.Max,
		&stats.Humidity.Avg, &stats.Humidity.Min, &stats.Humidity.Max,
		&stats.Count,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute reading statistics: %w", err)
	}
	return &stats, nil
}

// ReadingBucket is one time bucket of grouped readings
type ReadingBucket struct {
	Bucket         time.Time
	AvgPM25        *float64
	AvgMQ135       *float64
	AvgMQ2         *float64
	AvgTemperature *float64
	AvgHumidity    *float64
	MaxPM25        *float64
	MaxMQ135       *float64
	MaxMQ2         *float64
	Count          int64
}

// GroupedReadings buckets readings by truncating created_at to the given
// granularity ("hour", "day" or "week"), ascending by bucket time.
func (r *Repository) GroupedReadings(ctx context.Context, deviceID uuid.UUID, granularity string, start, end time.Time) ([]*ReadingBucket, error) {
	switch granularity {
	case "hour", "day", "week":
	default:
		return nil, fmt.Errorf("unsupported granularity %q", granularity)
	}

	// granularity is validated above, safe to interpolate.
	query := fmt.Sprintf(`
		SELECT
			date_trunc('%s', created_at) AS bucket,
			AVG(pm25), AVG(mq135), AVG(mq2), AVG(temperature), AVG(humidity),
			MAX(pm25), MAX(mq135), MAX(mq2),
			COUNT(*)
		FROM readings
		WHERE device_id = $1 AND created_at >= $2 AND created_at <= $3
		GROUP BY bucket
		ORDER BY bucket ASC
	`, granularity)

	rows, err := r.pool.Query(ctx, query, deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query grouped readings: %w", err)
	}
	defer rows.Close()

	var buckets []*ReadingBucket
	for rows.Next() {
		var b ReadingBucket
		err := rows.Scan(
			&b.Bucket,
			&b.AvgPM25, &b.AvgMQ135, &b.AvgMQ2, &b.AvgTemperature, &b.AvgHumidity,
			&b.MaxPM25, &b.MaxMQ135, &b.MaxMQ2,
			&b.Count,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return buckets, nil
}

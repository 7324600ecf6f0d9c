package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudior04/iot-backend/internal/apperr"
	"github.com/sudior04/iot-backend/internal/db"
	"github.com/sudior04/iot-backend/internal/repository"
)

// Store exposes the telemetry persistence operations: append, point
// queries, windowed aggregates and threshold suggestion.
type Store struct {
	repo       *repository.Repository
	minSamples int
	logger     *zap.Logger
}

// NewStore creates a telemetry store. minSamples guards SuggestThresholds
// against suggesting from too few points.
func NewStore(repo *repository.Repository, minSamples int, logger *zap.Logger) *Store {
	return &Store{
		repo:       repo,
		minSamples: minSamples,
		logger:     logger,
	}
}

// Append persists one reading and returns it with the assigned id. The
// caller (the ingestion pipeline) has already resolved the owning device.
func (s *Store) Append(ctx context.Context, reading *db.Reading) (*db.Reading, error) {
	stored, err := s.repo.InsertReading(ctx, reading)
	if err != nil {
		return nil, fmt.Errorf("%w: append reading: %v", apperr.ErrPersistence, err)
	}
	return stored, nil
}

// Latest returns the newest reading for a device, or nil when none exists
func (s *Store) Latest(ctx context.Context, deviceID uuid.UUID) (*db.Reading, error) {
	reading, err := s.repo.LatestReading(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: latest reading: %v", apperr.ErrPersistence, err)
	}
	return reading, nil
}

// History returns up to limit readings, newest first
func (s *Store) History(ctx context.Context, deviceID uuid.UUID, limit int) ([]*db.Reading, error) {
	readings, err := s.repo.ReadingHistory(ctx, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: reading history: %v", apperr.ErrPersistence, err)
	}
	return readings, nil
}

// Range returns up to limit readings within [start, end], newest first
func (s *Store) Range(ctx context.Context, deviceID uuid.UUID, start, end time.Time, limit int) ([]*db.Reading, error) {
	readings, err := s.repo.ReadingsInRange(ctx, deviceID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: readings in range: %v", apperr.ErrPersistence, err)
	}
	return readings, nil
}

// Statistics computes per-metric avg/min/max and the record count over
// [start, end]. Metrics with no values in range have nil aggregates.
func (s *Store) Statistics(ctx context.Context, deviceID uuid.UUID, start, end time.Time) (*repository.ReadingStats, error) {
	stats, err := s.repo.ReadingStatistics(ctx, deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: reading statistics: %v", apperr.ErrPersistence, err)
	}
	return stats, nil
}

// Grouped buckets readings by hour, day or week, ascending by bucket time
func (s *Store) Grouped(ctx context.Context, deviceID uuid.UUID, granularity string, start, end time.Time) ([]*repository.ReadingBucket, error) {
	switch granularity {
	case "hour", "day", "week":
	default:
		return nil, fmt.Errorf("%w: granularity must be hour, day or week", apperr.ErrValidation)
	}

	buckets, err := s.repo.GroupedReadings(ctx, deviceID, granularity, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: grouped readings: %v", apperr.ErrPersistence, err)
	}
	return buckets, nil
}

// SuggestThresholds analyzes the lookback window and proposes per-metric
// thresholds as mean + 1.5·stddev. With fewer readings than the minimum
// sample count it returns an explicit insufficient-data result instead of
// a suggestion from too few points.
func (s *Store) SuggestThresholds(ctx context.Context, deviceID uuid.UUID, lookbackDays int) (*Suggestion, error) {
	since := time.Now().AddDate(0, 0, -lookbackDays)

	readings, err := s.repo.ReadingsSince(ctx, deviceID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: readings for suggestion: %v", apperr.ErrPersistence, err)
	}

	suggestion := Suggest(readings, s.minSamples)
	suggestion.AnalyzedDays = lookbackDays
	return suggestion, nil
}

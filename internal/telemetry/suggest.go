package telemetry

import (
	"math"
	"time"

	"github.com/sudior04/iot-backend/internal/db"
)

// suggestionMargin is the number of standard deviations added to the mean.
// This is a simple anomaly-margin heuristic, not a statistical model: it
// assumes "usual plus some headroom" is a reasonable alert ceiling.
const suggestionMargin = 1.5

// MetricSuggestion is the proposed threshold for one metric
type MetricSuggestion struct {
	Mean      float64
	StdDev    float64
	Suggested float64
	Min       float64
	Max       float64
	Samples   int
}

// Suggestion is the result of a threshold analysis. When Insufficient is
// true there were fewer readings than required and no per-metric
// suggestions are produced.
type Suggestion struct {
	Insufficient bool
	DataPoints   int
	AnalyzedDays int
	GeneratedAt  time.Time
	PM25         *MetricSuggestion
	MQ135        *MetricSuggestion
	MQ2          *MetricSuggestion
	Temperature  *MetricSuggestion
	Humidity     *MetricSuggestion
}

// Suggest computes per-metric threshold suggestions from a sample of
// readings. Metrics with no non-null values in the sample stay nil.
func Suggest(readings []*db.Reading, minSamples int) *Suggestion {
	suggestion := &Suggestion{
		DataPoints:  len(readings),
		GeneratedAt: time.Now(),
	}

	if len(readings) < minSamples {
		suggestion.Insufficient = true
		return suggestion
	}

	suggestion.PM25 = summarize(collect(readings, func(r *db.Reading) *float64 { return r.PM25 }))
	suggestion.MQ135 = summarize(collect(readings, func(r *db.Reading) *float64 { return r.MQ135 }))
	suggestion.MQ2 = summarize(collect(readings, func(r *db.Reading) *float64 { return r.MQ2 }))
	suggestion.Temperature = summarize(collect(readings, func(r *db.Reading) *float64 { return r.Temperature }))
	suggestion.Humidity = summarize(collect(readings, func(r *db.Reading) *float64 { return r.Humidity }))

	return suggestion
}

func collect(readings []*db.Reading, pick func(*db.Reading) *float64) []float64 {
	var values []float64
	for _, r := range readings {
		if v := pick(r); v != nil {
			values = append(values, *v)
		}
	}
	return values
}

// summarize computes mean, population standard deviation and the
// suggested threshold for one metric's samples. Returns nil for an empty
// sample set.
func summarize(values []float64) *MetricSuggestion {
	if len(values) == 0 {
		return nil
	}

	sum := 0.0
	min := values[0]
	max := values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	stdDev := math.Sqrt(variance)

	return &MetricSuggestion{
		Mean:      mean,
		StdDev:    stdDev,
		Suggested: mean + suggestionMargin*stdDev,
		Min:       min,
		Max:       max,
		Samples:   len(values),
	}
}

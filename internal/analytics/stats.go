// Package analytics derives indicators from stored daily series: spreads,
// composite indexes, margins, rolling betas, lead-lag correlations, momentum.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/anivertis/market-pipeline/internal/model"
)

// Mean returns the arithmetic mean, or NaN for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Variance returns the population variance.
func Variance(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	mean := Mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}

// Covariance returns the population covariance of two equal-length series.
func Covariance(xs, ys []float64) float64 {
	if len(xs) == 0 || len(xs) != len(ys) {
		return math.NaN()
	}
	meanX, meanY := Mean(xs), Mean(ys)
	var sum float64
	for i := range xs {
		sum += (xs[i] - meanX) * (ys[i] - meanY)
	}
	return sum / float64(len(xs))
}

// Pearson returns the correlation coefficient, or NaN when either series has
// zero variance.
func Pearson(xs, ys []float64) float64 {
	cov := Covariance(xs, ys)
	if math.IsNaN(cov) {
		return math.NaN()
	}
	stdX := math.Sqrt(Variance(xs))
	stdY := math.Sqrt(Variance(ys))
	if stdX == 0 || stdY == 0 {
		return math.NaN()
	}
	return cov / (stdX * stdY)
}

// LogReturns converts a price series to log returns. Non-positive prices are
// skipped rather than producing infinities.
func LogReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev, curr := values[i-1], values[i]
		if prev <= 0 || curr <= 0 {
			continue
		}
		returns = append(returns, math.Log(curr/prev))
	}
	return returns
}

// PctChange returns the fractional change between the last value and the one
// window observations earlier, or NaN with insufficient history.
func PctChange(values []float64, window int) float64 {
	if len(values) < window+1 {
		return math.NaN()
	}
	current := values[len(values)-1]
	past := values[len(values)-1-window]
	if past == 0 {
		return math.NaN()
	}
	return (current - past) / past
}

// MovingAverage returns the mean of the trailing window, or NaN when the
// series is shorter than the window.
func MovingAverage(values []float64, window int) float64 {
	if window <= 0 || len(values) < window {
		return math.NaN()
	}
	return Mean(values[len(values)-window:])
}

// MonthPoint is one month of an aggregated daily series.
type MonthPoint struct {
	Month   time.Time
	Average float64
	Last    float64
}

// MonthlyAggregate collapses a daily series into per-month average and
// closing values, sorted by month ascending.
func MonthlyAggregate(series []model.SeriesPoint) []MonthPoint {
	if len(series) < 2 {
		return nil
	}

	type bucket struct {
		values []float64
		last   float64
	}
	buckets := make(map[time.Time]*bucket)
	for _, p := range series {
		month := time.Date(p.Date.Year(), p.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		b, ok := buckets[month]
		if !ok {
			b = &bucket{}
			buckets[month] = b
		}
		b.values = append(b.values, p.Value)
		b.last = p.Value
	}

	months := make([]MonthPoint, 0, len(buckets))
	for month, b := range buckets {
		months = append(months, MonthPoint{Month: month, Average: Mean(b.values), Last: b.last})
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Month.Before(months[j].Month) })
	return months
}

// Package insights computes heuristic analytics over transaction
// aggregates: an activity forecast, volume anomaly flags, and a simple
// month-over-month projection. Every function is pure and deterministic;
// degenerate input yields a conservative well-formed result, never a panic.
//
// Confidence scores are presentation-oriented approximations, not
// statistical confidence intervals. They are capped at 95 to signal
// "never certain".
package insights

import (
	"fmt"
	"math"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
)

const (
	// confidenceCap is the hard ceiling for every confidence score.
	confidenceCap = 95
	// activityBaseline is the floor used when history is too thin to
	// say anything.
	activityBaseline = 60
	// growthThreshold separates "stable" from a real trend.
	growthThreshold = 0.1

	// minAnomalyDays is the minimum sample before any day can be flagged.
	minAnomalyDays = 7
	// anomalyZ flags a day; criticalZ escalates it.
	anomalyZ  = 2.0
	criticalZ = 3.0

	// minForecastMonths is the minimum history for a projection.
	minForecastMonths = 3
)

// PredictUserActivity classifies the trend in daily transaction counts
// and returns an activity forecast. recent is the caller's recent
// transaction window; it only feeds the confidence score.
func PredictUserActivity(recent []domain.Transaction, daily []domain.DailyVolume) domain.Insight {
	if len(daily) < 2 {
		return domain.Insight{
			Type:        domain.InsightPrediction,
			Title:       "User Activity Forecast",
			Description: "Not enough daily history to establish a trend; activity is assumed stable.",
			Severity:    domain.SeverityInfo,
			Confidence:  activityBaseline,
			Metadata: map[string]any{
				"growthRate": 0.0,
				"trend":      "stable",
			},
		}
	}

	first := daily[0]
	last := daily[len(daily)-1]
	base := first.Count
	if base < 1 {
		base = 1
	}
	growth := float64(last.Count-first.Count) / float64(base)

	trend := "stable"
	switch {
	case growth > growthThreshold:
		trend = "increasing"
	case growth < -growthThreshold:
		trend = "decreasing"
	}

	// More history and more recent activity mean more signal.
	confidence := activityBaseline + 2*len(daily) + recencyBonus(recent)
	if confidence > confidenceCap {
		confidence = confidenceCap
	}

	return domain.Insight{
		Type:     domain.InsightPrediction,
		Title:    "User Activity Forecast",
		Description: fmt.Sprintf("Transaction activity is %s: %+.1f%% change in daily volume over %d days.",
			trend, growth*100, len(daily)),
		Severity:   domain.SeverityInfo,
		Confidence: confidence,
		Metadata: map[string]any{
			"growthRate": growth,
			"trend":      trend,
		},
	}
}

// recencyBonus counts transactions from the last 7 days, capped at 10.
func recencyBonus(recent []domain.Transaction) int {
	cutoff := time.Now().AddDate(0, 0, -7)
	bonus := 0
	for _, tx := range recent {
		if tx.Date.After(cutoff) {
			bonus++
			if bonus == 10 {
				break
			}
		}
	}
	return bonus
}

// DetectVolumeAnomalies flags days whose transaction count deviates more
// than two standard deviations from the mean. Fewer than seven days of
// data cannot establish an anomaly and yields an empty slice. Output
// order matches input order.
func DetectVolumeAnomalies(daily []domain.DailyVolume) []domain.Insight {
	anomalies := []domain.Insight{}
	if len(daily) < minAnomalyDays {
		return anomalies
	}

	mean := 0.0
	for _, d := range daily {
		mean += float64(d.Count)
	}
	mean /= float64(len(daily))

	variance := 0.0
	for _, d := range daily {
		diff := float64(d.Count) - mean
		variance += diff * diff
	}
	variance /= float64(len(daily)) // population variance
	stddev := math.Sqrt(variance)

	// A flat series has nothing to flag.
	if stddev == 0 {
		return anomalies
	}

	for _, d := range daily {
		z := (float64(d.Count) - mean) / stddev
		abs := math.Abs(z)
		if abs <= anomalyZ {
			continue
		}

		// The z-score of a single outlier saturates near sqrt(n-1), so
		// escalation uses the mean-relative deviation, which keeps
		// growing with the outlier's magnitude.
		ratio := abs
		if mean > 0 {
			ratio = math.Abs(float64(d.Count)-mean) / mean
		}
		severity := domain.SeverityWarning
		if ratio > criticalZ {
			severity = domain.SeverityCritical
		}
		direction := "above"
		if z < 0 {
			direction = "below"
		}

		confidence := int(50 + abs*10)
		if confidence > confidenceCap {
			confidence = confidenceCap
		}

		anomalies = append(anomalies, domain.Insight{
			Type:  domain.InsightAnomaly,
			Title: "Unusual Transaction Volume",
			Description: fmt.Sprintf("%s had %d transactions, %.1f standard deviations %s the daily average of %.1f.",
				d.Date, d.Count, abs, direction, mean),
			Severity:   severity,
			Confidence: confidence,
			Metadata: map[string]any{
				"date":   d.Date,
				"count":  d.Count,
				"zScore": z,
			},
		})
	}

	return anomalies
}

// ForecastTransactionVolume fits a least-squares line through the
// monthly transaction and revenue series independently and projects one
// month forward. Confidence follows how much of the historical variance
// the linear fit explains.
func ForecastTransactionVolume(monthly []domain.MonthlyVolume) domain.Insight {
	if len(monthly) < minForecastMonths {
		return domain.Insight{
			Type:        domain.InsightForecast,
			Title:       "Transaction Forecast: Insufficient Data",
			Description: fmt.Sprintf("At least %d months of history are required for a projection.", minForecastMonths),
			Severity:    domain.SeverityInfo,
			Confidence:  0,
		}
	}

	txSeries := make([]float64, len(monthly))
	revSeries := make([]float64, len(monthly))
	for i, m := range monthly {
		txSeries[i] = float64(m.Transactions)
		revSeries[i] = m.Revenue
	}

	txNext, txR2 := projectNext(txSeries)
	revNext, revR2 := projectNext(revSeries)
	if txNext < 0 {
		txNext = 0
	}
	if revNext < 0 {
		revNext = 0
	}

	// Average fit quality across both series drives the confidence.
	r2 := (txR2 + revR2) / 2
	confidence := int(math.Round(r2 * confidenceCap))
	if confidence > confidenceCap {
		confidence = confidenceCap
	}
	if confidence < 1 {
		confidence = 1
	}

	return domain.Insight{
		Type:  domain.InsightForecast,
		Title: "Transaction Volume Forecast",
		Description: fmt.Sprintf("Next month projects to about %d transactions and %.2f in revenue, based on %d months of history.",
			int(math.Round(txNext)), revNext, len(monthly)),
		Severity:   domain.SeverityInfo,
		Confidence: confidence,
		Metadata: map[string]any{
			"projectedTransactions": math.Round(txNext),
			"projectedRevenue":      revNext,
			"months":                len(monthly),
		},
	}
}

// projectNext fits y = a + b*x over x = 0..n-1 and returns the value at
// x = n plus the R-squared of the fit. A flat series fits perfectly.
func projectNext(series []float64) (next, r2 float64) {
	n := float64(len(series))

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return series[len(series)-1], 1
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	next = intercept + slope*n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i, y := range series {
		fit := intercept + slope*float64(i)
		ssTot += (y - meanY) * (y - meanY)
		ssRes += (y - fit) * (y - fit)
	}
	if ssTot == 0 {
		return next, 1
	}
	r2 = 1 - ssRes/ssTot
	if r2 < 0 {
		r2 = 0
	}
	return next, r2
}

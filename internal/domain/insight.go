package domain

// ============================================================
// Analytics aggregates and insights
// ============================================================

// Insight kinds and severities.
const (
	InsightPrediction = "prediction"
	InsightAnomaly    = "anomaly"
	InsightForecast   = "forecast"

	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Insight is a derived analytics record. Insights are ephemeral:
// recomputed on each request, never persisted.
type Insight struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    string         `json:"severity"`
	Confidence  int            `json:"confidence"` // 0-100
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DailyVolume is a per-day transaction aggregate, computed upstream
// from raw transaction history.
type DailyVolume struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// MonthlyVolume is a per-month transaction aggregate.
type MonthlyVolume struct {
	Month        string  `json:"month"` // YYYY-MM
	Transactions int     `json:"transactions"`
	Revenue      float64 `json:"revenue"`
}

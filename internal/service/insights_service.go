package service

import (
	"context"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/insights"

	"go.opentelemetry.io/otel/attribute"
)

// Windows fed into the heuristics. The heuristics themselves only see
// the aggregates, never the store.
const (
	insightDailyWindow   = 30 // days
	insightMonthlyWindow = 6  // months
	insightRecentWindow  = 7  // days
)

// GetInsights fetches the customer's aggregates and runs the three
// insight heuristics over them. Insights are recomputed on every call
// and never persisted.
func (s *BankService) GetInsights(ctx context.Context, customerID string) ([]domain.Insight, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.GetInsights")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("insights", time.Since(start)) }()

	recent, err := s.store.ListRecentTransactions(ctx, customerID, insightRecentWindow)
	if err != nil {
		return nil, err
	}
	daily, err := s.store.GetDailyVolumes(ctx, customerID, insightDailyWindow)
	if err != nil {
		return nil, err
	}
	monthly, err := s.store.GetMonthlyVolumes(ctx, customerID, insightMonthlyWindow)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Insight, 0, 4)
	out = append(out, insights.PredictUserActivity(recent, daily))
	out = append(out, insights.DetectVolumeAnomalies(daily)...)
	out = append(out, insights.ForecastTransactionVolume(monthly))
	return out, nil
}

package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
	"github.com/smallbiznis/feeledger/internal/feeledger/reconcile"
	"go.opentelemetry.io/otel/attribute"
)

func (s *Service) Report(ctx context.Context, filter domain.ReportFilter) (domain.Report, error) {
	filter, err := reconcile.NormalizeFilter(filter)
	if err != nil {
		return domain.Report{}, err
	}

	ctx, span := s.tracer.Start(ctx, "feeledger.Report")
	defer span.End()
	span.SetAttributes(
		attribute.String("feeledger.view", string(filter.View)),
		attribute.String("feeledger.status_filter", filter.Status),
	)

	query := domain.ReportQuery{
		StudentID: filter.StudentID,
		Boarding:  filter.Boarding,
	}
	if filter.Status != domain.ReportStatusAll {
		query.Status = domain.Status(strings.ToUpper(filter.Status))
	}

	rows, err := s.repo.ListReportRows(ctx, s.db, query)
	if err != nil {
		return domain.Report{}, err
	}
	flat := make([]domain.ReportRow, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			flat = append(flat, *row)
		}
	}

	report, err := reconcile.Aggregate(flat, filter, s.clock.Now(), s.agingBuckets())
	if err != nil {
		return domain.Report{}, err
	}
	s.metrics.RecordReport(ctx, string(filter.View))
	span.SetAttributes(attribute.Int("feeledger.rows", report.Summary.Count))
	return report, nil
}

func (s *Service) agingBuckets() []domain.AgingBucket {
	configured := s.policy.Get().AgingBuckets
	out := make([]domain.AgingBucket, 0, len(configured))
	for _, b := range configured {
		out = append(out, domain.AgingBucket{Label: b.Label, MinDays: b.MinDays, MaxDays: b.MaxDays})
	}
	return out
}

package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
)

// NormalizeFilter fills defaults and rejects unknown filter values.
func NormalizeFilter(f domain.ReportFilter) (domain.ReportFilter, error) {
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	switch f.Status {
	case "":
		f.Status = domain.ReportStatusAll
	case domain.ReportStatusAll, domain.ReportStatusUnpaid, domain.ReportStatusPartial, domain.ReportStatusPaid:
	default:
		return f, domain.ErrInvalidStatusFilter
	}

	switch f.View {
	case "":
		f.View = domain.ViewHistory
	case domain.ViewHistory, domain.ViewDue:
	default:
		return f, domain.ErrInvalidView
	}

	f.FeeType = strings.TrimSpace(f.FeeType)

	if f.DateRange != nil {
		r := *f.DateRange
		switch r.Granularity {
		case "":
			r.Granularity = domain.GranularityExact
		case domain.GranularityExact, domain.GranularityMonth:
		default:
			return f, domain.ErrInvalidDateRange
		}
		if r.Start.IsZero() || r.End.IsZero() || r.Start.After(r.End) {
			return f, domain.ErrInvalidDateRange
		}
		f.DateRange = &r
	}
	return f, nil
}

// Aggregate filters rows conjunctively, sorts them for the view and totals
// the result. An empty result yields a zero summary.
func Aggregate(rows []domain.ReportRow, filter domain.ReportFilter, now time.Time, buckets []domain.AgingBucket) (domain.Report, error) {
	filter, err := NormalizeFilter(filter)
	if err != nil {
		return domain.Report{}, err
	}
	feeType := ""
	if filter.FeeType != "" {
		feeType = slug.Make(filter.FeeType)
	}

	out := make([]domain.ReportRow, 0, len(rows))
	for _, row := range rows {
		row = withBalance(row, now)
		if !matches(row, filter, feeType) {
			continue
		}
		out = append(out, row)
	}

	if filter.View == domain.ViewDue {
		sortDue(out)
	} else {
		sortHistory(out)
	}

	return domain.Report{
		Rows:    out,
		Summary: summarize(out, filter.View, now, buckets),
	}, nil
}

func withBalance(row domain.ReportRow, now time.Time) domain.ReportRow {
	payable := StoredPayable(row.FeeAmount, row.WaiverAmount, row.DiscountAmount)
	row.FinalPayable = payable.FinalPayable
	row.Due = nonNegative(payable.FinalPayable.Sub(row.AmountPaidTotal))
	row.Overdue = row.Due.IsPositive() && row.DueDate != nil && row.DueDate.Before(now)
	return row
}

func matches(row domain.ReportRow, f domain.ReportFilter, feeType string) bool {
	if f.Status != domain.ReportStatusAll && !strings.EqualFold(string(row.Status), f.Status) {
		return false
	}
	if feeType != "" && slug.Make(row.FeeType) != feeType {
		return false
	}
	if f.StudentID != 0 && row.StudentID != f.StudentID {
		return false
	}
	if f.Boarding != nil && row.IsBoarding != *f.Boarding {
		return false
	}
	if f.View == domain.ViewDue && !row.Due.IsPositive() {
		return false
	}
	if f.DateRange != nil && !inRange(reportDate(row, f.View), *f.DateRange) {
		return false
	}
	return true
}

func reportDate(row domain.ReportRow, view domain.View) time.Time {
	if view == domain.ViewDue && row.DueDate != nil {
		return *row.DueDate
	}
	return row.CreatedAt
}

func inRange(t time.Time, r domain.DateRange) bool {
	if r.Granularity == domain.GranularityMonth {
		k := monthKey(t)
		return k >= monthKey(r.Start) && k <= monthKey(r.End)
	}
	return !t.Before(r.Start) && !t.After(r.End)
}

func monthKey(t time.Time) int {
	t = t.UTC()
	return t.Year()*12 + int(t.Month()) - 1
}

func sortHistory(rows []domain.ReportRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
}

// sortDue puts overdue rows first, then the soonest due date. Rows without a
// due date go last.
func sortDue(rows []domain.ReportRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Overdue != b.Overdue {
			return a.Overdue
		}
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return a.ID < b.ID
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		case !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return a.ID < b.ID
	})
}

func summarize(rows []domain.ReportRow, view domain.View, now time.Time, buckets []domain.AgingBucket) domain.ReportSummary {
	sum := domain.ReportSummary{
		TotalPaid:     decimal.Zero,
		TotalWaiver:   decimal.Zero,
		TotalDiscount: decimal.Zero,
		TotalDue:      decimal.Zero,
	}
	var aging []domain.AgingTotal
	if view == domain.ViewDue {
		aging = make([]domain.AgingTotal, len(buckets))
		for i, b := range buckets {
			aging[i] = domain.AgingTotal{Label: b.Label, Due: decimal.Zero}
		}
	}

	for _, row := range rows {
		sum.Count++
		sum.TotalPaid = sum.TotalPaid.Add(row.AmountPaidTotal)
		sum.TotalWaiver = sum.TotalWaiver.Add(row.WaiverAmount)
		sum.TotalDiscount = sum.TotalDiscount.Add(row.DiscountAmount)
		sum.TotalDue = sum.TotalDue.Add(row.Due)
		if !row.Overdue {
			continue
		}
		sum.OverdueCount++
		if aging == nil {
			continue
		}
		days := int(now.Sub(*row.DueDate).Hours() / 24)
		for i, b := range buckets {
			if days < b.MinDays || (b.MaxDays != nil && days > *b.MaxDays) {
				continue
			}
			aging[i].Count++
			aging[i].Due = aging[i].Due.Add(row.Due)
			break
		}
	}
	sum.Aging = aging
	return sum
}

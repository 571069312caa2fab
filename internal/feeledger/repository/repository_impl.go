package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
	"gorm.io/gorm"
)

const reportColumns = `e.id, e.student_id, e.fee_definition_id, e.fund_id, e.academic_year_id,
	e.amount_paid_total, e.discount_amount, e.waiver_amount, e.status, e.created_at, e.updated_at,
	d.fee_head_id, h.code AS fee_type, h.name AS fee_title, d.is_boarding, d.due_date,
	d.amount AS fee_amount`

const outstandingExpr = `d.amount - e.waiver_amount - e.discount_amount - e.amount_paid_total`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, student_id, fee_definition_id, fund_id, academic_year_id,
			amount_paid_total, discount_amount, waiver_amount, status, version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.StudentID,
		entry.FeeDefinitionID,
		entry.FundID,
		entry.AcademicYearID,
		entry.AmountPaidTotal,
		entry.DiscountAmount,
		entry.WaiverAmount,
		entry.Status,
		entry.Version,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

func (r *repo) UpdateEntry(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE ledger_entries
		 SET amount_paid_total = ?, discount_amount = ?, waiver_amount = ?, status = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		entry.AmountPaidTotal,
		entry.DiscountAmount,
		entry.WaiverAmount,
		entry.Status,
		entry.UpdatedAt,
		entry.ID,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	entry.Version = expectedVersion + 1
	return true, nil
}

func (r *repo) FindEntryByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("id = ?", id).
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) FindEntry(ctx context.Context, db *gorm.DB, studentID, feeDefinitionID snowflake.ID) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("student_id = ? AND fee_definition_id = ?", studentID, feeDefinitionID).
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) ListEntriesByStudent(ctx context.Context, db *gorm.DB, studentID snowflake.ID, feeDefinitionIDs []snowflake.ID) ([]*domain.LedgerEntry, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("student_id = ?", studentID)
	if len(feeDefinitionIDs) > 0 {
		stmt = stmt.Where("fee_definition_id IN ?", feeDefinitionIDs)
	}

	var entries []*domain.LedgerEntry
	if err := stmt.Order("created_at asc, id asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) InsertTombstone(ctx context.Context, db *gorm.DB, tombstone *domain.Tombstone) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO fee_tombstones (id, student_id, fee_definition_ids, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		tombstone.ID,
		tombstone.StudentID,
		tombstone.FeeDefinitionIDs,
		tombstone.Reason,
		tombstone.CreatedAt,
	).Error
}

func (r *repo) ListTombstones(ctx context.Context, db *gorm.DB, studentID snowflake.ID) ([]*domain.Tombstone, error) {
	var tombstones []*domain.Tombstone
	err := db.WithContext(ctx).
		Model(&domain.Tombstone{}).
		Where("student_id = ?", studentID).
		Order("created_at asc, id asc").
		Find(&tombstones).Error
	if err != nil {
		return nil, err
	}
	return tombstones, nil
}

func (r *repo) ListReportRows(ctx context.Context, db *gorm.DB, query domain.ReportQuery) ([]*domain.ReportRow, error) {
	stmt := db.WithContext(ctx).
		Table("ledger_entries AS e").
		Select(reportColumns).
		Joins("JOIN fee_definitions d ON d.id = e.fee_definition_id").
		Joins("JOIN fee_heads h ON h.id = d.fee_head_id")
	if query.StudentID != 0 {
		stmt = stmt.Where("e.student_id = ?", query.StudentID)
	}
	if query.Status != "" {
		stmt = stmt.Where("e.status = ?", query.Status)
	}
	if query.Boarding != nil {
		stmt = stmt.Where("d.is_boarding = ?", *query.Boarding)
	}

	var rows []*domain.ReportRow
	if err := stmt.Order("e.created_at desc, e.id desc").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) SumByStatus(ctx context.Context, db *gorm.DB) ([]domain.StatusTotal, error) {
	var totals []domain.StatusTotal
	err := db.WithContext(ctx).Raw(
		`SELECT e.status AS status, COUNT(*) AS count,
		        SUM(CASE WHEN ` + outstandingExpr + ` > 0 THEN ` + outstandingExpr + ` ELSE 0 END) AS outstanding
		 FROM ledger_entries e
		 JOIN fee_definitions d ON d.id = e.fee_definition_id
		 GROUP BY e.status
		 ORDER BY e.status`,
	).Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ReportQuery struct {
	StudentID snowflake.ID
	Status    Status
	Boarding  *bool
}

type Repository interface {
	InsertEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	// UpdateEntry applies entry when the stored version equals expectedVersion.
	// It reports false when another writer got there first.
	UpdateEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry, expectedVersion int64) (bool, error)
	FindEntryByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LedgerEntry, error)
	FindEntry(ctx context.Context, db *gorm.DB, studentID, feeDefinitionID snowflake.ID) (*LedgerEntry, error)
	ListEntriesByStudent(ctx context.Context, db *gorm.DB, studentID snowflake.ID, feeDefinitionIDs []snowflake.ID) ([]*LedgerEntry, error)

	InsertTombstone(ctx context.Context, db *gorm.DB, tombstone *Tombstone) error
	ListTombstones(ctx context.Context, db *gorm.DB, studentID snowflake.ID) ([]*Tombstone, error)

	ListReportRows(ctx context.Context, db *gorm.DB, query ReportQuery) ([]*ReportRow, error)
	SumByStatus(ctx context.Context, db *gorm.DB) ([]StatusTotal, error)
}

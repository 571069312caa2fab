package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// WaiverRule grants a percentage reduction on a set of fee heads
// for one student in one academic year.
type WaiverRule struct {
	ID             snowflake.ID                      `gorm:"primaryKey" json:"id"`
	StudentID      snowflake.ID                      `gorm:"not null;index:idx_waiver_rules_student_year,priority:1" json:"student_id"`
	AcademicYearID snowflake.ID                      `gorm:"not null;index:idx_waiver_rules_student_year,priority:2" json:"academic_year_id"`
	FeeHeadIDs     datatypes.JSONSlice[snowflake.ID] `gorm:"not null" json:"fee_head_ids"`
	WaiverPercent  decimal.Decimal                   `gorm:"type:decimal(5,2);not null" json:"waiver_percent"`
	Note           string                            `gorm:"type:text" json:"note,omitempty"`
	CreatedAt      time.Time                         `gorm:"not null" json:"created_at"`
}

func (WaiverRule) TableName() string { return "waiver_rules" }

// CoversHead reports whether the rule lists feeHeadID.
func (r WaiverRule) CoversHead(feeHeadID snowflake.ID) bool {
	for _, id := range r.FeeHeadIDs {
		if id == feeHeadID {
			return true
		}
	}
	return false
}

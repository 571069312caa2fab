package reconcile

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
)

type Lookup struct {
	Entry  *domain.LedgerEntry
	Active bool
}

// IsActiveFor reports whether no tombstone of the student lists the definition.
func IsActiveFor(tombstones []domain.Tombstone, studentID, feeDefinitionID snowflake.ID) bool {
	for _, t := range tombstones {
		if t.StudentID == studentID && t.Covers(feeDefinitionID) {
			return false
		}
	}
	return true
}

func FindEntry(entries []domain.LedgerEntry, studentID, feeDefinitionID snowflake.ID) *domain.LedgerEntry {
	for i := range entries {
		if entries[i].StudentID == studentID && entries[i].FeeDefinitionID == feeDefinitionID {
			return &entries[i]
		}
	}
	return nil
}

// LookupEntry skips the entry search for withdrawn fees.
func LookupEntry(entries []domain.LedgerEntry, tombstones []domain.Tombstone, studentID, feeDefinitionID snowflake.ID) Lookup {
	if !IsActiveFor(tombstones, studentID, feeDefinitionID) {
		return Lookup{Active: false}
	}
	return Lookup{
		Entry:  FindEntry(entries, studentID, feeDefinitionID),
		Active: true,
	}
}

// Package reconcile holds the pure fee arithmetic: waivers, payables,
// status derivation, upsert planning and report aggregation. Nothing here
// touches storage, so every function is safe for concurrent use.
package reconcile

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
)

// Precedence picks a rule when several waivers cover the same fee.
type Precedence string

const (
	PrecedenceFirstMatch Precedence = "first_match"
	PrecedenceHighest    Precedence = "highest"
)

var hundred = decimal.NewFromInt(100)

// ResolveWaiver returns the rule that applies to def for the student and
// year, or nil with a zero percent.
func ResolveWaiver(def catalogdomain.FeeDefinition, studentID, academicYearID snowflake.ID, rules []waiverdomain.WaiverRule, precedence Precedence) (*waiverdomain.WaiverRule, decimal.Decimal) {
	var picked *waiverdomain.WaiverRule
	for i := range rules {
		rule := &rules[i]
		if rule.StudentID != studentID || rule.AcademicYearID != academicYearID {
			continue
		}
		if !rule.CoversHead(def.FeeHeadID) {
			continue
		}
		if picked == nil {
			picked = rule
			if precedence != PrecedenceHighest {
				break
			}
			continue
		}
		if rule.WaiverPercent.GreaterThan(picked.WaiverPercent) {
			picked = rule
		}
	}
	if picked == nil {
		return nil, decimal.Zero
	}
	return picked, clampPercent(picked.WaiverPercent)
}

// WaiverAmount converts a percent into currency, half-up to cents and never
// more than amount.
func WaiverAmount(amount, percent decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	waiver := amount.Mul(clampPercent(percent)).Div(hundred).Round(2)
	if waiver.GreaterThan(amount) {
		return amount
	}
	return waiver
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

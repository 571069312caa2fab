package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	feeledgerdomain "github.com/smallbiznis/feeledger/internal/feeledger/domain"
)

type listLedgerEntriesQuery struct {
	Status      string `form:"status"`
	FeeType     string `form:"fee_type"`
	StudentID   string `form:"student_id"`
	Boarding    string `form:"boarding"`
	From        string `form:"from"`
	To          string `form:"to"`
	Granularity string `form:"granularity"`
	View        string `form:"view"`
}

// ListLedgerEntries serves the payment history and dues report.
func (s *Server) ListLedgerEntries(c *gin.Context) {
	var query listLedgerEntriesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	studentID, err := parseOptionalSnowflakeID(query.StudentID)
	if err != nil {
		AbortWithError(c, newValidationError("student_id", "invalid_student_id", "invalid student_id"))
		return
	}
	boarding, err := parseOptionalBool(query.Boarding)
	if err != nil {
		AbortWithError(c, newValidationError("boarding", "invalid_boarding", "invalid boarding"))
		return
	}
	dateRange, err := parseDateRange(query.From, query.To, query.Granularity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filter := feeledgerdomain.ReportFilter{
		Status:    strings.TrimSpace(query.Status),
		FeeType:   strings.TrimSpace(query.FeeType),
		Boarding:  boarding,
		DateRange: dateRange,
		View:      feeledgerdomain.View(strings.ToLower(strings.TrimSpace(query.View))),
	}
	if studentID != nil {
		filter.StudentID = *studentID
	}

	report, err := s.ledgerSvc.Report(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report.Rows, "summary": report.Summary})
}

func (s *Server) GetLedgerEntry(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entry, err := s.ledgerSvc.GetEntry(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

// parseDateRange needs both bounds or neither.
func parseDateRange(from, to, granularity string) (*feeledgerdomain.DateRange, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, feeledgerdomain.ErrInvalidDateRange
	}

	start, err := parseOptionalTime(from, false)
	if err != nil {
		return nil, newValidationError("from", "invalid_from", "invalid from")
	}
	end, err := parseOptionalTime(to, true)
	if err != nil {
		return nil, newValidationError("to", "invalid_to", "invalid to")
	}

	return &feeledgerdomain.DateRange{
		Start:       *start,
		End:         *end,
		Granularity: feeledgerdomain.Granularity(strings.ToLower(strings.TrimSpace(granularity))),
	}, nil
}

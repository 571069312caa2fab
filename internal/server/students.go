package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	feeledgerdomain "github.com/smallbiznis/feeledger/internal/feeledger/domain"
)

type paymentItemRequest struct {
	FeeDefinitionID string          `json:"fee_definition_id"`
	Amount          json.RawMessage `json:"amount"`
	Discount        json.RawMessage `json:"discount"`
}

type submitPaymentsRequest struct {
	Items []paymentItemRequest `json:"items"`
}

type withdrawFeesRequest struct {
	FeeDefinitionIDs []string `json:"fee_definition_ids"`
	Reason           string   `json:"reason"`
}

func (s *Server) GetStatement(c *gin.Context) {
	studentID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	classID, err := queryID(c, "student_class_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	yearID, err := queryID(c, "academic_year_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	boarding, err := parseOptionalBool(c.Query("boarding"))
	if err != nil {
		AbortWithError(c, newValidationError("boarding", "invalid_boarding", "invalid boarding"))
		return
	}

	statement, err := s.ledgerSvc.Statement(c.Request.Context(), feeledgerdomain.StatementRequest{
		StudentID:      studentID,
		StudentClassID: classID,
		AcademicYearID: yearID,
		Boarding:       boarding,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": statement})
}

// SubmitPayments answers 200 even when some items failed; callers read the
// per-item outcomes.
func (s *Server) SubmitPayments(c *gin.Context) {
	studentID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req submitPaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items := make([]feeledgerdomain.PaymentItem, 0, len(req.Items))
	for _, item := range req.Items {
		defID, err := parseOptionalSnowflakeID(item.FeeDefinitionID)
		if err != nil || defID == nil {
			AbortWithError(c, feeledgerdomain.ErrInvalidFeeDefinition)
			return
		}
		amount, err := parsePaymentAmount(item.Amount)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		discount, err := parsePaymentAmount(item.Discount)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		items = append(items, feeledgerdomain.PaymentItem{
			FeeDefinitionID: *defID,
			Amount:          amount,
			Discount:        discount,
		})
	}

	resp, err := s.ledgerSvc.SubmitPayments(c.Request.Context(), feeledgerdomain.SubmitPaymentsRequest{
		StudentID: studentID,
		Items:     items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// parsePaymentAmount accepts a JSON number or numeric string. Absent values
// are zero.
func parsePaymentAmount(raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.Zero, nil
	}
	var value decimal.Decimal
	if err := value.UnmarshalJSON(trimmed); err != nil {
		return decimal.Decimal{}, feeledgerdomain.ErrInvalidAmount
	}
	return value, nil
}

func (s *Server) WithdrawFees(c *gin.Context) {
	studentID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req withdrawFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defIDs, err := parseSnowflakeIDs(req.FeeDefinitionIDs)
	if err != nil {
		AbortWithError(c, feeledgerdomain.ErrInvalidFeeDefinition)
		return
	}

	tombstone, err := s.ledgerSvc.WithdrawFees(c.Request.Context(), feeledgerdomain.WithdrawFeesRequest{
		StudentID:        studentID,
		FeeDefinitionIDs: defIDs,
		Reason:           strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tombstone})
}

func (s *Server) ListTombstones(c *gin.Context) {
	studentID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tombstones, err := s.ledgerSvc.ListTombstones(c.Request.Context(), studentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tombstones})
}

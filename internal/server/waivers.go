package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
)

type createWaiverRuleRequest struct {
	StudentID      string          `json:"student_id"`
	AcademicYearID string          `json:"academic_year_id"`
	FeeHeadIDs     []string        `json:"fee_head_ids"`
	WaiverPercent  decimal.Decimal `json:"waiver_percent"`
	Note           string          `json:"note"`
}

func (s *Server) CreateWaiverRule(c *gin.Context) {
	var req createWaiverRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	studentID, err := parseOptionalSnowflakeID(req.StudentID)
	if err != nil || studentID == nil {
		AbortWithError(c, waiverdomain.ErrInvalidStudent)
		return
	}
	yearID, err := parseOptionalSnowflakeID(req.AcademicYearID)
	if err != nil || yearID == nil {
		AbortWithError(c, waiverdomain.ErrInvalidAcademicYear)
		return
	}
	headIDs, err := parseSnowflakeIDs(req.FeeHeadIDs)
	if err != nil {
		AbortWithError(c, waiverdomain.ErrInvalidFeeHeads)
		return
	}

	rule, err := s.waiverSvc.CreateRule(c.Request.Context(), waiverdomain.CreateRuleRequest{
		StudentID:      *studentID,
		AcademicYearID: *yearID,
		FeeHeadIDs:     headIDs,
		WaiverPercent:  req.WaiverPercent,
		Note:           strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rule})
}

func (s *Server) ListWaiverRules(c *gin.Context) {
	studentID, err := queryID(c, "student_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	yearID, err := queryID(c, "academic_year_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rules, err := s.waiverSvc.ListRules(c.Request.Context(), waiverdomain.ListRulesRequest{
		StudentID:      studentID,
		AcademicYearID: yearID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

func (s *Server) DeleteWaiverRule(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.waiverSvc.DeleteRule(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

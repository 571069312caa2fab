package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	feecatalogdomain "github.com/smallbiznis/feeledger/internal/feecatalog/domain"
)

type createFeeHeadRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type createFeeDefinitionRequest struct {
	FeeHeadID      string          `json:"fee_head_id"`
	StudentClassID string          `json:"student_class_id"`
	AcademicYearID string          `json:"academic_year_id"`
	FundID         string          `json:"fund_id"`
	Amount         decimal.Decimal `json:"amount"`
	IsBoarding     bool            `json:"is_boarding"`
	DueDate        string          `json:"due_date"`
}

func (s *Server) CreateFeeHead(c *gin.Context) {
	var req createFeeHeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	head, err := s.catalogSvc.CreateFeeHead(c.Request.Context(), feecatalogdomain.CreateFeeHeadRequest{
		Name: strings.TrimSpace(req.Name),
		Code: strings.TrimSpace(req.Code),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": head})
}

func (s *Server) ListFeeHeads(c *gin.Context) {
	heads, err := s.catalogSvc.ListFeeHeads(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": heads})
}

func (s *Server) CreateFeeDefinition(c *gin.Context) {
	var req createFeeDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ids, err := parseSnowflakeIDs([]string{req.FeeHeadID, req.StudentClassID, req.AcademicYearID, req.FundID})
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "fee_head_id, student_class_id, academic_year_id and fund_id are required"))
		return
	}

	dueDate, err := parseOptionalTime(req.DueDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
		return
	}

	def, err := s.catalogSvc.CreateFeeDefinition(c.Request.Context(), feecatalogdomain.CreateFeeDefinitionRequest{
		FeeHeadID:      ids[0],
		StudentClassID: ids[1],
		AcademicYearID: ids[2],
		FundID:         ids[3],
		Amount:         req.Amount,
		IsBoarding:     req.IsBoarding,
		DueDate:        dueDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": def})
}

func (s *Server) ListFeeDefinitions(c *gin.Context) {
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
	headID, err := queryID(c, "fee_head_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	boarding, err := parseOptionalBool(c.Query("boarding"))
	if err != nil {
		AbortWithError(c, newValidationError("boarding", "invalid_boarding", "invalid boarding"))
		return
	}

	defs, err := s.catalogSvc.ListFeeDefinitions(c.Request.Context(), feecatalogdomain.ListFeeDefinitionRequest{
		StudentClassID: classID,
		AcademicYearID: yearID,
		FeeHeadID:      headID,
		Boarding:       boarding,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": defs})
}

func (s *Server) GetFeeDefinition(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	def, err := s.catalogSvc.GetFeeDefinition(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": def})
}

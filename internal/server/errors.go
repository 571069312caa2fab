package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	feecatalogdomain "github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	feeledgerdomain "github.com/smallbiznis/feeledger/internal/feeledger/domain"
	"github.com/smallbiznis/feeledger/internal/ratelimit"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger with the envelope type and code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, feeledgerdomain.ErrCancelled):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isCatalogValidationError(err),
		isWaiverValidationError(err),
		isLedgerValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isCatalogValidationError(err error) bool {
	switch {
	case errors.Is(err, feecatalogdomain.ErrInvalidName),
		errors.Is(err, feecatalogdomain.ErrInvalidCode),
		errors.Is(err, feecatalogdomain.ErrInvalidFeeHead),
		errors.Is(err, feecatalogdomain.ErrInvalidStudentClass),
		errors.Is(err, feecatalogdomain.ErrInvalidAcademicYear),
		errors.Is(err, feecatalogdomain.ErrInvalidFund),
		errors.Is(err, feecatalogdomain.ErrInvalidAmount),
		errors.Is(err, feecatalogdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isWaiverValidationError(err error) bool {
	switch {
	case errors.Is(err, waiverdomain.ErrInvalidStudent),
		errors.Is(err, waiverdomain.ErrInvalidAcademicYear),
		errors.Is(err, waiverdomain.ErrInvalidFeeHeads),
		errors.Is(err, waiverdomain.ErrInvalidPercent),
		errors.Is(err, waiverdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isLedgerValidationError(err error) bool {
	switch {
	case errors.Is(err, feeledgerdomain.ErrInvalidAmount),
		errors.Is(err, feeledgerdomain.ErrDiscountExceedsPayable),
		errors.Is(err, feeledgerdomain.ErrDuplicateSelection),
		errors.Is(err, feeledgerdomain.ErrInvalidStudent),
		errors.Is(err, feeledgerdomain.ErrInvalidFeeDefinition),
		errors.Is(err, feeledgerdomain.ErrEmptyBatch),
		errors.Is(err, feeledgerdomain.ErrInvalidStatusFilter),
		errors.Is(err, feeledgerdomain.ErrInvalidDateRange),
		errors.Is(err, feeledgerdomain.ErrInvalidView),
		errors.Is(err, feeledgerdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, feeledgerdomain.ErrAlreadySettled),
		errors.Is(err, feeledgerdomain.ErrEntryConflict),
		errors.Is(err, feeledgerdomain.ErrFeeInactive),
		errors.Is(err, feecatalogdomain.ErrFeeHeadExists),
		errors.Is(err, ratelimit.ErrLockTimeout):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, feeledgerdomain.ErrAlreadySettled):
		return "fee already settled"
	case errors.Is(err, feeledgerdomain.ErrFeeInactive):
		return "fee withdrawn for student"
	case errors.Is(err, feecatalogdomain.ErrFeeHeadExists):
		return "fee head already exists"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, feecatalogdomain.ErrNotFound),
		errors.Is(err, waiverdomain.ErrNotFound),
		errors.Is(err, feeledgerdomain.ErrNotFound),
		errors.Is(err, feeledgerdomain.ErrFeeDefinitionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	var failure *feeledgerdomain.UpsertFailure
	if errors.As(err, &failure) {
		return failure.Reason()
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "discount_exceeds_payable":
		return "discount"
	case "empty_batch", "duplicate_selection":
		return "items"
	case "invalid_status_filter":
		return "status"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "discount_exceeds_payable":
		return "discount exceeds payable after waiver"
	case "empty_batch":
		return "at least one item is required"
	case "duplicate_selection":
		return "fee definition selected more than once"
	default:
		return "invalid value"
	}
}

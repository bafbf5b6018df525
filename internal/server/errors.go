package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/flightclub/internal/actor"
	auditdomain "github.com/smallbiznis/flightclub/internal/audit/domain"
	"github.com/smallbiznis/flightclub/internal/authorization"
	"github.com/smallbiznis/flightclub/internal/billing/rate"
	"github.com/smallbiznis/flightclub/internal/billing/split"
	chargedomain "github.com/smallbiznis/flightclub/internal/charge/domain"
	flightdomain "github.com/smallbiznis/flightclub/internal/flight/domain"
	ledgerdomain "github.com/smallbiznis/flightclub/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/flightclub/internal/ledger/service"
	"github.com/smallbiznis/flightclub/internal/lock"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	"github.com/smallbiznis/flightclub/pkg/db/pagination"
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
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
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
					Message: validationErrorMessage(err, code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, actor.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    sentinelCode(err),
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    sentinelCode(err),
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
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

// classifyErrorForLog feeds the request logger with the same category the
// client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, "internal_error"
	}
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if code == "" {
		code = payload.Type
	}
	return payload.Type, code
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
	case split.IsValidationError(err),
		ledgerservice.IsValidationError(err):
		return true
	case errors.Is(err, ownerdomain.ErrInvalidType),
		errors.Is(err, ownerdomain.ErrInvalidID),
		errors.Is(err, flightdomain.ErrInvalidID),
		errors.Is(err, chargedomain.ErrEmptyBatch),
		errors.Is(err, chargedomain.ErrBatchTooLarge),
		errors.Is(err, chargedomain.ErrInvalidRate),
		errors.Is(err, rate.ErrInvalidBillingUnit),
		errors.Is(err, rate.ErrInvalidDuration),
		errors.Is(err, rate.ErrNegativeFee),
		errors.Is(err, rate.ErrInvalidFee),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, flightdomain.ErrAlreadyCharged),
		errors.Is(err, flightdomain.ErrNeedsBoardReview),
		errors.Is(err, flightdomain.ErrNotCharged),
		errors.Is(err, flightdomain.ErrMissingFlightTimes),
		errors.Is(err, ledgerdomain.ErrAlreadyReversed),
		errors.Is(err, ledgerdomain.ErrIsReversal),
		errors.Is(err, ledgerdomain.ErrNotFlightCharge),
		errors.Is(err, ledgerdomain.ErrEditWindowClosed),
		errors.Is(err, ownerdomain.ErrInactive),
		errors.Is(err, lock.ErrBusy):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, flightdomain.ErrNotFound),
		errors.Is(err, flightdomain.ErrAircraftNotFound),
		errors.Is(err, ownerdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// sentinelCode strips any wrapping context and keeps the leading code.
func sentinelCode(err error) string {
	code, _, _ := strings.Cut(err.Error(), ": ")
	return strings.TrimSpace(code)
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return sentinelCode(err)
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_split_percentage_sum", "invalid_split_percentage", "duplicate_split_target",
		"no_split_targets", "invalid_split_minutes_sum":
		return "splits"
	case "invalid_transaction_kind":
		return "kind"
	case "invalid_owner_type":
		return "target_type"
	case "invalid_owner_id", "missing_target_id":
		return "target_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(err error, code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	}
	// Wrapped errors carry a readable detail such as the offending sum.
	if _, detail, ok := strings.Cut(err.Error(), ": "); ok && strings.TrimSpace(detail) != "" {
		return strings.TrimSpace(detail)
	}
	return "invalid value"
}

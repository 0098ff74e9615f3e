package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/mailseat/internal/audit/domain"
	organizationdomain "github.com/smallbiznis/mailseat/internal/organization/domain"
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
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not_found")
)

// Messages returned with each conflict or rejection. Callers must be able to
// tell "buy more seats" from "invite already pending" from "last owner".
var errorMessages = map[string]string{
	"unauthorized":            "caller identity is missing or unknown",
	"forbidden":               "caller's role does not permit this action",
	"email_mismatch":          "invite was issued to a different email address",
	"organization_not_found":  "organization not found",
	"member_not_found":        "user is not a member of the organization",
	"invite_not_found":        "invite not found",
	"seats_exhausted":         "no seats available; increase the organization's seat capacity",
	"seats_below_usage":       "seat capacity cannot be lower than seats in use",
	"duplicate_invite":        "a pending invite already exists for this email",
	"already_member":          "user is already a member of the organization",
	"already_accepted":        "invite has already been accepted",
	"last_owner":              "an organization must keep at least one owner",
	"invite_expired":          "invite has expired; ask for a new one",
	"rate_limited":            "too many invites; try again later",
	"invalid_name":            "name is required",
	"invalid_email":           "email address is invalid",
	"invalid_role":            "role must be OWNER, ADMIN or MEMBER",
	"invalid_seats":           "seats must be at least 1",
	"invalid_token":           "invite token is invalid",
	"invalid_transfer_target": "new owner must be another, non-owner member",
	"invalid_organization":    "organization id is invalid",
	"invalid_user":            "user id is invalid",
}

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
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    vErr.Errors[0].Code,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return payloadFor(http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, ErrNotFound):
		return payloadFor(http.StatusNotFound, "not_found", "not_found")
	case errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return payloadFor(http.StatusBadRequest, "validation_error", err.Error())
	}

	code := organizationdomain.CodeOf(err)
	switch organizationdomain.KindOf(err) {
	case organizationdomain.KindInvalid:
		return payloadFor(http.StatusBadRequest, "validation_error", code)
	case organizationdomain.KindUnauthorized:
		return payloadFor(http.StatusUnauthorized, "unauthorized", code)
	case organizationdomain.KindForbidden:
		return payloadFor(http.StatusForbidden, "forbidden", code)
	case organizationdomain.KindNotFound:
		return payloadFor(http.StatusNotFound, "not_found", code)
	case organizationdomain.KindConflict:
		return payloadFor(http.StatusConflict, "conflict", code)
	case organizationdomain.KindExpired:
		return payloadFor(http.StatusBadRequest, "expired", code)
	case organizationdomain.KindRateLimited:
		return payloadFor(http.StatusTooManyRequests, "rate_limited", code)
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Code:    "internal_error",
			Message: "internal server error",
		}
	}
}

func payloadFor(status int, errType, code string) (int, errorPayload) {
	message, ok := errorMessages[code]
	if !ok {
		message = code
	}
	return status, errorPayload{Type: errType, Code: code, Message: message}
}

// classifyErrorForLog returns the error type and code recorded on the request log.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil && len(vErr.Errors) > 0 {
		return vErr
	}
	return nil
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/vibecoding/vibe-academy/internal/application/validation"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// APIVersion is reported in every response envelope.
const APIVersion = "v1"

// Error codes returned in the envelope.
const (
	CodeValidation        = "validation_failed"
	CodeBadRequest        = "bad_request"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeAlreadyRegistered = "already_registered"
	CodeConflict          = "conflict"
	CodeRateLimited       = "rate_limited"
	CodeUnavailable       = "service_unavailable"
	CodeInternal          = "internal_error"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError describes a failed request. Details carries field → message
// pairs for validation failures.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
}

// OK writes a 200 envelope around data.
func OK(c *gin.Context, data any) {
	Respond(c, http.StatusOK, data, nil)
}

// Created writes a 201 envelope around data.
func Created(c *gin.Context, data any) {
	Respond(c, http.StatusCreated, data, nil)
}

// Respond writes a success envelope with optional metadata.
func Respond(c *gin.Context, status int, data any, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = APIVersion

	c.JSON(status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: RequestID(c),
	})
}

// Fail aborts the request with an error envelope.
func Fail(c *gin.Context, status int, apiErr APIError) {
	c.AbortWithStatusJSON(status, JSONResponse{
		Success:   false,
		Error:     &apiErr,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: APIVersion},
		RequestID: RequestID(c),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// FailWithError maps err onto a status code and writes the envelope.
// Server-side failures are logged; client mistakes are not.
func FailWithError(c *gin.Context, err error) {
	status, apiErr := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			logger.String("path", c.FullPath()),
			logger.Int("status", status),
			logger.Err(err),
		)
	}
	Fail(c, status, apiErr)
}

// StatusFor classifies an application error.
func StatusFor(err error) (int, APIError) {
	var fieldErrs *validation.FieldErrors
	var verrs validator.ValidationErrors

	switch {
	case errors.As(err, &fieldErrs):
		return http.StatusBadRequest, APIError{Code: CodeValidation, Message: "request is invalid", Details: fieldErrs.Fields}
	case errors.As(err, &verrs):
		return http.StatusBadRequest, APIError{Code: CodeValidation, Message: "request is invalid", Details: validationDetails(verrs)}
	case shared.IsValidation(err):
		return http.StatusBadRequest, APIError{Code: CodeBadRequest, Message: publicMessage(err, "request is invalid")}
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, APIError{Code: CodeForbidden, Message: "access denied"}
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: "authentication required"}
	case shared.IsNotFound(err):
		return http.StatusNotFound, APIError{Code: CodeNotFound, Message: publicMessage(err, "resource not found")}
	case errors.Is(err, shared.ErrAlreadyRegistered):
		return http.StatusConflict, APIError{Code: CodeAlreadyRegistered, Message: shared.ErrAlreadyRegistered.Message}
	case shared.IsAlreadyExists(err), errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict, APIError{Code: CodeConflict, Message: publicMessage(err, "resource was changed concurrently")}
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, APIError{Code: CodeRateLimited, Message: "too many requests, please slow down"}
	case shared.IsExternalService(err), shared.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, APIError{Code: CodeUnavailable, Message: "service is temporarily unavailable, please try again shortly"}
	default:
		return http.StatusInternalServerError, APIError{Code: CodeInternal, Message: "internal server error"}
	}
}

// publicMessage returns the outermost DomainError message.
func publicMessage(err error, fallback string) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return fallback
}

func validationDetails(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = "failed on the '" + fe.Tag() + "' rule"
	}
	return out
}

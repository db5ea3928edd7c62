package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/validation"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		for _, err := range errs {
			var domainErr *domainerrors.Error
			if errors.As(err, &domainErr) {
				return &APIError{
					status:  domainErr.HTTPStatus(),
					Code:    string(domainErr.Code),
					Message: domainErr.Message,
					Details: domainErr.Details,
				}
			}
		}

		if fields := schemaFieldErrors(errs); len(fields) > 0 {
			derr := domainerrors.ValidationWithDetails(message, fields)
			return &APIError{
				status:  derr.HTTPStatus(),
				Code:    string(derr.Code),
				Message: derr.Message,
				Details: derr.Details,
			}
		}

		return &APIError{
			status:  status,
			Code:    statusToCode(status),
			Message: message,
		}
	}
}

// schemaFieldErrors turns huma's request validation details into the same
// field map the domain validator produces. Keys drop the location prefix, so
// "body.identity_id" becomes "identity_id".
func schemaFieldErrors(errs []error) validation.FieldErrors {
	var fields validation.FieldErrors
	for _, err := range errs {
		var detailer huma.ErrorDetailer
		if !errors.As(err, &detailer) {
			continue
		}
		detail := detailer.ErrorDetail()
		if fields == nil {
			fields = make(validation.FieldErrors)
		}
		key := fieldKey(detail)
		if prev, ok := fields[key]; ok {
			fields[key] = prev + "; " + detail.Message
			continue
		}
		fields[key] = detail.Message
	}
	return fields
}

func fieldKey(detail *huma.ErrorDetail) string {
	var missing string
	if _, err := fmt.Sscanf(detail.Message, "expected required property %s to be present", &missing); err == nil {
		return missing
	}
	key := detail.Location
	for _, prefix := range []string{"body.", "query.", "path.", "header."} {
		key = strings.TrimPrefix(key, prefix)
	}
	if key == "" {
		return "request"
	}
	return key
}

// apiError converts any error returned by a service into a huma error.
// Unknown errors become 500s without leaking their text.
func apiError(err error) error {
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return huma.NewError(domainErr.HTTPStatus(), domainErr.Message, domainErr)
	}
	return huma.NewError(http.StatusInternalServerError, "internal error")
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	return string(domainerrors.CodeForStatus(status, domainerrors.CodeInternal))
}

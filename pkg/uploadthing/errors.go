package uploadthing

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/farmisen/upyloadthing/internal/httpx"
	"github.com/farmisen/upyloadthing/internal/utapi"
)

// APIError is returned when UploadThing answers with a non-2xx status.
type APIError struct {
	StatusCode int
	// Message is the "error" field of the response body, when present.
	Message string
	Body    []byte
	Header  http.Header
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("uploadthing: API error: %d", e.StatusCode)
	}
	return fmt.Sprintf("uploadthing: API error: %d - %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure is worth retrying.
func (e *APIError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// translateError converts transport level HTTP errors into APIError and
// annotates everything else with the failing operation.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) {
		return &APIError{
			StatusCode: httpErr.StatusCode,
			Message:    utapi.ErrorMessage(httpErr.Body),
			Body:       httpErr.Body,
			Header:     httpErr.Header,
		}
	}
	return fmt.Errorf("uploadthing: %s: %w", op, err)
}

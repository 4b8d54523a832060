// Package httperror renders API failures as a stable JSON envelope. Handlers
// return *HTTPError values; anything unexpected goes through InternalError,
// which also reports to the crash tracker.
package httperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stellar/go/support/log"
	"github.com/stellar/go/support/render/httpjson"
)

// HTTPError is the JSON error envelope returned by every API endpoint.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	// Extras carries field-level details, like validation failures or the
	// balance figures behind a 402.
	Extras map[string]interface{} `json:"extras,omitempty"`
	// Err preserves the original error for logging. Never serialized.
	Err error `json:"-"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Render writes the envelope to the response with its status code.
func (e *HTTPError) Render(w http.ResponseWriter) {
	httpjson.RenderStatus(w, e.StatusCode, e, httpjson.JSON)
}

// NewHTTPError builds an HTTPError. If originalErr already is an HTTPError
// with the same status and the caller adds no message or extras, it is
// returned as is so envelopes don't nest.
func NewHTTPError(statusCode int, msg string, originalErr error, extras map[string]interface{}) *HTTPError {
	if msg == "" && len(extras) == 0 {
		var hErr *HTTPError
		if errors.As(originalErr, &hErr) && hErr.StatusCode == statusCode {
			return hErr
		}
	}

	return &HTTPError{
		StatusCode: statusCode,
		Message:    msg,
		Extras:     extras,
		Err:        originalErr,
	}
}

func BadRequest(msg string, originalErr error, extras map[string]interface{}) *HTTPError {
	if msg == "" {
		msg = "The request was invalid in some way."
	}
	return NewHTTPError(http.StatusBadRequest, msg, originalErr, extras)
}

func NotFound(msg string, originalErr error, extras map[string]interface{}) *HTTPError {
	if msg == "" {
		msg = "Resource not found."
	}
	return NewHTTPError(http.StatusNotFound, msg, originalErr, extras)
}

// PaymentRequired is the insufficient-credits response for the submit path.
func PaymentRequired(msg string, originalErr error, extras map[string]interface{}) *HTTPError {
	if msg == "" {
		msg = "Insufficient credits."
	}
	return NewHTTPError(http.StatusPaymentRequired, msg, originalErr, extras)
}

// InternalError reports the original error before building the 500 envelope,
// so no unexpected failure can pass through silently.
func InternalError(ctx context.Context, msg string, originalErr error, extras map[string]interface{}) *HTTPError {
	if msg == "" {
		msg = "An internal error occurred while processing this request."
	}
	reportError(ctx, originalErr, msg)
	return NewHTTPError(http.StatusInternalServerError, msg, originalErr, extras)
}

// ReportErrorFunc forwards unexpected errors to the crash tracker.
type ReportErrorFunc func(ctx context.Context, err error, msg string)

// reportError logs with a stack until SetDefaultReportErrorFunc installs the
// crash tracker's reporter at startup.
var reportError ReportErrorFunc = func(ctx context.Context, err error, msg string) {
	if msg != "" {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	log.Ctx(ctx).WithStack(err).Errorf("%+v", err)
}

func SetDefaultReportErrorFunc(fn ReportErrorFunc) {
	reportError = fn
}

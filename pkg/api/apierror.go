// Package api serves the HTTP surface of opsgate: the approval queue, ad-hoc
// triage, SLA and escalation checks, and manual job triggers. Every error
// response is an RFC 7807 problem document.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hotdash/opsgate/pkg/approval"
	"github.com/hotdash/opsgate/pkg/scheduler"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// RequestID echoes X-Request-ID for log correlation.
	RequestID string `json:"request_id,omitempty"`
	// Errors lists every failed validation gate.
	Errors []string `json:"errors,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func problemType(status int) string {
	return fmt.Sprintf("https://opsgate.dev/problems/%d", status)
}

// WriteProblem writes p as application/problem+json, filling the type,
// instance and request id when r is non-nil.
func WriteProblem(w http.ResponseWriter, r *http.Request, p *ProblemDetail) {
	if p.Type == "" {
		p.Type = problemType(p.Status)
	}
	if r != nil {
		p.Instance = r.URL.Path
		p.RequestID = RequestIDFrom(r.Context())
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError writes a problem with the given status, title and detail.
func WriteError(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	WriteProblem(w, r, &ProblemDetail{Status: status, Title: title, Detail: detail})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusBadRequest, "Bad Request", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusNotFound, "Not Found", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response. err is logged and never sent to
// the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	ctx := context.Background()
	if r != nil {
		ctx = r.Context()
	}
	slog.Default().With("component", "api").ErrorContext(ctx, "internal server error",
		"error", err, "request_id", RequestIDFrom(ctx))
	WriteError(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// WriteDomainError maps errors from the approval machine and the scheduler
// onto problem responses.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *approval.ValidationError
		cerr *approval.StateConflictError
		xerr *approval.ExecutionError
		berr *badRequest
	)
	switch {
	case errors.As(err, &berr):
		WriteBadRequest(w, r, berr.msg)
	case errors.As(err, &verr):
		WriteProblem(w, r, &ProblemDetail{
			Status: http.StatusUnprocessableEntity,
			Title:  "Validation Failed",
			Detail: fmt.Sprintf("cannot %s request %s", verr.Op, verr.RequestID),
			Errors: verr.Fields,
		})
	case errors.As(err, &cerr):
		WriteError(w, r, http.StatusConflict, "Conflict", cerr.Error())
	case errors.Is(err, approval.ErrNotFound):
		WriteNotFound(w, r, err.Error())
	case errors.As(err, &xerr):
		WriteError(w, r, http.StatusBadGateway, "Execution Failed", xerr.Error())
	case errors.Is(err, scheduler.ErrBusy):
		WriteError(w, r, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, r, http.StatusGatewayTimeout, "Gateway Timeout", "The operation did not finish in time.")
	default:
		WriteInternal(w, r, err)
	}
}

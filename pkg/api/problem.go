// Package api exposes the OpenIntent HTTP surface (spec.md §6) over
// pkg/intentcore and its sibling services, using RFC 7807 Problem
// Details for every error response.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ProblemDetail implements RFC 7807. All API error responses use this
// shape.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// problemTypeBase roots the Type URI; it need not resolve to anything,
// it only needs to be a stable identifier per RFC 7807 §3.1.
const problemTypeBase = "https://openintent.dev/errors"

// WriteErrorR writes an RFC 7807 response enriched with request context.
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("%s/%d", problemTypeBase, status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", detail)
}

func WriteUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	if detail == "" {
		detail = "authentication required"
	}
	WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", detail)
}

func WriteForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	if detail == "" {
		detail = "insufficient permission"
	}
	WriteErrorR(w, r, http.StatusForbidden, "Forbidden", detail)
}

func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusNotFound, "Not Found", detail)
}

func WriteConflict(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusConflict, "Conflict", detail)
}

// WritePreconditionFailed backs the If-Match version mismatch response
// for every version-CAS write: a 409 Conflict whose detail names the
// current version.
func WritePreconditionFailed(w http.ResponseWriter, r *http.Request, currentVersion int64) {
	WriteErrorR(w, r, http.StatusConflict, "Conflict",
		fmt.Sprintf("If-Match version mismatch, current version is %d", currentVersion))
}

func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteErrorR(w, r, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
}

// WriteViolation backs a 403 governance rejection, carrying the rule
// name in the body so callers can distinguish it from an ACL denial
// (spec.md §7).
func WriteViolation(w http.ResponseWriter, r *http.Request, rule, detail string) {
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("%s/governance/%s", problemTypeBase, rule),
		Title:    "Governance Violation",
		Status:   http.StatusForbidden,
		Detail:   detail,
		Instance: r.URL.Path,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteInternal logs err server-side and returns an opaque 500; err is
// never exposed to the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "error", err, "path", r.URL.Path)
	WriteErrorR(w, r, http.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred")
}

// writeJSON writes v as a 200 (or status) JSON body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

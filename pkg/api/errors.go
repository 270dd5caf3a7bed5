package api

import (
	"errors"
	"net/http"

	"github.com/openintent-ai/openintent/pkg/authz"
	"github.com/openintent-ai/openintent/pkg/governance"
	"github.com/openintent-ai/openintent/pkg/store"
)

// writeServiceError maps a business-logic error to its RFC 7807
// response, the single place spec.md §7's status-code table is wired up.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	var versionErr *store.VersionConflictError
	var violation *governance.ErrViolation

	switch {
	case errors.As(err, &versionErr):
		WritePreconditionFailed(w, r, versionErr.CurrentVersion)
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, r, "resource not found")
	case errors.Is(err, authz.ErrForbidden):
		WriteForbidden(w, r, err.Error())
	case errors.As(err, &violation):
		WriteViolation(w, r, violation.Rule, violation.Detail)
	case errors.Is(err, store.ErrCycle):
		WriteBadRequest(w, r, "dependency would introduce a cycle")
	case errors.Is(err, store.ErrLeaseConflict):
		WriteConflict(w, r, "scope is already leased")
	case errors.Is(err, store.ErrDuplicate):
		WriteConflict(w, r, "duplicate entry")
	case errors.Is(err, store.ErrAlreadyDecided):
		WriteConflict(w, r, "already decided")
	case errors.Is(err, store.ErrChannelClosed):
		WriteConflict(w, r, "channel is closed")
	default:
		WriteInternal(w, r, err)
	}
}

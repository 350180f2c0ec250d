package api

import (
	"errors"
	"net/http"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/httputil"
)

// writeDomainError maps service errors onto HTTP status codes. Not-found and
// cross-tenant lookups share a 404 so existence never leaks between
// organizations; denied actions on visible resources get a 403; structural
// invariant violations get a 409.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrNotFound):
		httputil.WriteNotFoundError(w, "Resource not found")
	case errors.Is(err, access.ErrPermissionDenied):
		httputil.WriteForbidden(w, "Permission denied")
	case access.IsStructuralViolation(err):
		httputil.WriteConflict(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

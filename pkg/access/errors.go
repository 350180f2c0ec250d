package access

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource id does not resolve, or
	// resolves outside the caller's organization. The two cases are
	// deliberately indistinguishable so existence does not leak across
	// tenants.
	ErrNotFound = errors.New("resource not found")

	// ErrPermissionDenied is returned when the resolver denies an action on
	// a resource the caller can see exists. Never converted to ErrNotFound.
	ErrPermissionDenied = errors.New("permission denied")
)

// StructuralError is returned when a mutation would violate a structural
// invariant (emptying a non-owner workspace, assigning a team the acting
// user does not belong to, creating a cycle in the workspace tree). The
// mutation is rejected before any row is touched.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural invariant violation: %s", e.Reason)
}

// IsStructuralViolation reports whether err is a StructuralError.
func IsStructuralViolation(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

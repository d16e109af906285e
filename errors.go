package ability

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied is the generic denial surfaced to callers. Action
// layers raise it when Can returns false or when PermittedFields comes back
// empty for a write.
var ErrPermissionDenied = errors.New("permission denied")

// UserNotFoundError is returned when compiling an Ability for a user id the
// store cannot locate. It matches ErrPermissionDenied under errors.Is so
// callers surface a generic denial instead of confirming that the user does
// not exist.
type UserNotFoundError struct {
	UserID int64
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user not found: %d", e.UserID)
}

func (e *UserNotFoundError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// ConditionResolutionError reports a permission whose condition template
// could not be decoded or resolved. The compiler recovers from it locally;
// it never reaches the request handler.
type ConditionResolutionError struct {
	PermissionID int64
	Err          error
}

func (e *ConditionResolutionError) Error() string {
	return fmt.Sprintf("resolve conditions for permission %d: %v", e.PermissionID, e.Err)
}

func (e *ConditionResolutionError) Unwrap() error { return e.Err }

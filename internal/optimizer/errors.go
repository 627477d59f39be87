package optimizer

import (
	"fmt"

	"github.com/breeze-rmm/startup-optimizer/internal/inventory"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

var (
	ErrEntryNotFound = inventory.ErrNotFound
	ErrEntryBusy     = inventory.ErrBusy
)

// PrivilegeError indicates the caller is not elevated.
type PrivilegeError struct {
	Action models.Action
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("%s requires administrator privileges", e.Action)
}

// ValidationError indicates a request that can never succeed as given.
type ValidationError struct {
	Field   string // e.g. "delaySeconds", "startupType", "action"
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// MutationError wraps a capability failure. The entry was left unchanged.
type MutationError struct {
	EntryID string
	Action  models.Action
	Err     error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.EntryID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

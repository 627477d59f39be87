package privilege

import (
	"sync/atomic"

	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// Gate answers whether the caller may mutate system startup configuration.
type Gate interface {
	IsElevated() bool
}

// System checks the privileges of the running process.
type System struct{}

// IsElevated reports whether the process runs as root (Unix) or with an
// elevated token (Windows). Platform code is in check_<platform>.go.
func (System) IsElevated() bool {
	return isElevated()
}

// Static is a Gate with a switchable answer, for callers that already know
// their privilege level and for tests.
type Static struct {
	elevated atomic.Bool
}

// NewStatic returns a Static gate initialised to elevated.
func NewStatic(elevated bool) *Static {
	s := &Static{}
	s.elevated.Store(elevated)
	return s
}

func (s *Static) IsElevated() bool { return s.elevated.Load() }

// Set changes the answer returned by IsElevated.
func (s *Static) Set(elevated bool) { s.elevated.Store(elevated) }

// elevatedActions maps actions that change system state.
var elevatedActions = map[models.Action]bool{
	models.ActionDisable:          true,
	models.ActionDelay:            true,
	models.ActionEnable:           true,
	models.ActionConfigureService: true,
}

// RequiresElevation returns true if the action needs root/admin privileges.
func RequiresElevation(action models.Action) bool {
	return elevatedActions[action]
}

// Package optimizer applies remediation actions to single startup entries.
//
// An action runs only while holding the entry's lease from the inventory
// repository, so two requests for the same entry never overlap; the second
// one fails fast with ErrEntryBusy. The stored entry changes only after the
// platform capability reports success.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/breeze-rmm/startup-optimizer/internal/audit"
	"github.com/breeze-rmm/startup-optimizer/internal/inventory"
	"github.com/breeze-rmm/startup-optimizer/internal/logging"
	"github.com/breeze-rmm/startup-optimizer/internal/privilege"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

var log = logging.L("optimizer")

// AutorunMutator changes the launch state of autorun entries.
type AutorunMutator interface {
	Disable(ctx context.Context, entry models.StartupEntry) error
	Enable(ctx context.Context, entry models.StartupEntry) error
	Delay(ctx context.Context, entry models.StartupEntry, seconds int) error
}

// ServiceMutator changes the start policy of services.
type ServiceMutator interface {
	SetStartupType(ctx context.Context, entry models.ServiceEntry, t models.StartupType) error
}

// Params carries the action arguments. DelaySeconds is used by Delay,
// StartupType by ConfigureService.
type Params struct {
	DelaySeconds int                `json:"delaySeconds,omitempty" yaml:"delaySeconds,omitempty"`
	StartupType  models.StartupType `json:"startupType,omitempty" yaml:"startupType,omitempty"`
}

// Request is one action against one entry.
type Request struct {
	EntryID string        `json:"entryId" yaml:"entryId"`
	Action  models.Action `json:"action" yaml:"action"`
	Params  Params        `json:"params" yaml:"params"`
}

// Result reports the outcome of a Request. Status and StartupType hold the
// entry's state after the call (unchanged on failure).
type Result struct {
	EntryID     string             `json:"entryId" yaml:"entryId"`
	Action      models.Action      `json:"action" yaml:"action"`
	Success     bool               `json:"success" yaml:"success"`
	Changed     bool               `json:"changed" yaml:"changed"`
	Busy        bool               `json:"busy,omitempty" yaml:"busy,omitempty"`
	Message     string             `json:"message" yaml:"message"`
	Status      models.Status      `json:"status" yaml:"status"`
	StartupType models.StartupType `json:"startupType,omitempty" yaml:"startupType,omitempty"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty"`
	Err         error              `json:"-" yaml:"-"`
}

// Executor runs optimization requests against the live inventory.
type Executor struct {
	repo     *inventory.Repository
	gate     privilege.Gate
	autoruns AutorunMutator
	services ServiceMutator
	audit    *audit.Logger
}

// NewExecutor wires an executor. A nil gate checks the running process; a
// nil audit logger disables the audit trail.
func NewExecutor(repo *inventory.Repository, gate privilege.Gate, autoruns AutorunMutator, services ServiceMutator, auditLog *audit.Logger) *Executor {
	if gate == nil {
		gate = privilege.System{}
	}
	return &Executor{
		repo:     repo,
		gate:     gate,
		autoruns: autoruns,
		services: services,
		audit:    auditLog,
	}
}

// Execute applies req. It never panics; every failure is reported in the
// Result.
func (x *Executor) Execute(ctx context.Context, req Request) (res Result) {
	opID := audit.NewOperationID()
	logger := logging.WithEntry(logging.FromContext(ctx, log), req.EntryID, string(req.Action))
	start := time.Now()

	x.audit.Log(audit.EventOptimizeRequested, opID, map[string]any{
		"entryId":      req.EntryID,
		"action":       string(req.Action),
		"delaySeconds": req.Params.DelaySeconds,
		"startupType":  string(req.Params.StartupType),
	})

	res = Result{EntryID: req.EntryID, Action: req.Action}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("optimization panicked", "panic", r, "stack", string(debug.Stack()))
			res.Success = false
			res.Changed = false
			res.Err = &MutationError{EntryID: req.EntryID, Action: req.Action, Err: fmt.Errorf("panic: %v", r)}
			res.Message = res.Err.Error()
		}
		x.finish(opID, logger, start, &res)
	}()

	if err := validateRequest(req); err != nil {
		return fail(res, err)
	}

	lease, err := x.repo.Acquire(req.EntryID)
	if err != nil {
		res.Busy = errors.Is(err, ErrEntryBusy)
		return fail(res, err)
	}
	defer lease.Release()

	entry := lease.Entry()
	res.Status = entry.Status()
	if entry.Service != nil {
		res.StartupType = entry.Service.StartupType
	}

	switch entry.Kind {
	case models.KindAutorun:
		return x.applyAutorun(ctx, lease, *entry.Autorun, req, res)
	case models.KindService:
		return x.applyService(ctx, lease, *entry.Service, req, res)
	default:
		return fail(res, fmt.Errorf("unknown entry kind %q", entry.Kind))
	}
}

func validateRequest(req Request) error {
	kind, known := models.KindOf(req.EntryID)
	switch req.Action {
	case models.ActionDisable, models.ActionEnable:
		return nil
	case models.ActionDelay:
		if known && kind != models.KindAutorun {
			return &ValidationError{Field: "action", Message: "only startup programs can be delayed"}
		}
		if !models.ValidDelay(req.Params.DelaySeconds) {
			return &ValidationError{
				Field:   "delaySeconds",
				Message: fmt.Sprintf("%d is outside %d..%d", req.Params.DelaySeconds, models.MinDelaySeconds, models.MaxDelaySeconds),
			}
		}
		return nil
	case models.ActionConfigureService:
		if known && kind != models.KindService {
			return &ValidationError{Field: "action", Message: "startup type applies to services only"}
		}
		if !req.Params.StartupType.Valid() {
			return &ValidationError{Field: "startupType", Message: fmt.Sprintf("%q is not automatic, manual or disabled", req.Params.StartupType)}
		}
		return nil
	default:
		return &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", req.Action)}
	}
}

func (x *Executor) applyAutorun(ctx context.Context, lease *inventory.Lease, e models.StartupEntry, req Request, res Result) Result {
	var target models.Status
	switch req.Action {
	case models.ActionDisable:
		target = models.Disabled()
		if e.Status.IsDisabled() {
			return noop(res, fmt.Sprintf("%s is already disabled", e.Name))
		}
		if !e.CanDisable {
			return fail(res, &ValidationError{Field: "entry", Message: fmt.Sprintf("%s cannot be disabled", e.Name)})
		}
	case models.ActionDelay:
		target = models.Delayed(req.Params.DelaySeconds)
		if e.Status == target {
			return noop(res, fmt.Sprintf("%s is already delayed by %ds", e.Name, target.DelaySeconds))
		}
		if e.Status.IsDisabled() {
			return fail(res, &ValidationError{Field: "entry", Message: fmt.Sprintf("%s is disabled; enable it before delaying", e.Name)})
		}
		if !e.CanDelay {
			return fail(res, &ValidationError{Field: "entry", Message: fmt.Sprintf("%s cannot be delayed", e.Name)})
		}
	case models.ActionEnable:
		target = models.Enabled()
		if e.Status.IsEnabled() {
			return noop(res, fmt.Sprintf("%s is already enabled", e.Name))
		}
	default:
		return fail(res, &ValidationError{Field: "action", Message: fmt.Sprintf("%s does not apply to startup programs", req.Action)})
	}

	if err := x.preflight(ctx, req.Action); err != nil {
		return fail(res, err)
	}
	if x.autoruns == nil {
		return fail(res, &MutationError{EntryID: e.ID, Action: req.Action, Err: errors.New("no autorun capability")})
	}

	var err error
	switch req.Action {
	case models.ActionDisable:
		err = x.autoruns.Disable(ctx, e)
	case models.ActionDelay:
		err = x.autoruns.Delay(ctx, e, target.DelaySeconds)
	case models.ActionEnable:
		err = x.autoruns.Enable(ctx, e)
	}
	if err != nil {
		return fail(res, &MutationError{EntryID: e.ID, Action: req.Action, Err: err})
	}

	lease.UpdateAutorun(func(stored *models.StartupEntry) { stored.SetStatus(target) })
	res.Success = true
	res.Changed = true
	res.Status = target
	res.Message = fmt.Sprintf("%s is now %s", e.Name, target)
	return res
}

func (x *Executor) applyService(ctx context.Context, lease *inventory.Lease, s models.ServiceEntry, req Request, res Result) Result {
	var target models.StartupType
	switch req.Action {
	case models.ActionDisable:
		target = models.StartupDisabled
	case models.ActionEnable:
		target = models.StartupAutomatic
	case models.ActionConfigureService:
		target = req.Params.StartupType
	default:
		return fail(res, &ValidationError{Field: "action", Message: fmt.Sprintf("%s does not apply to services", req.Action)})
	}

	if s.StartupType == target {
		return noop(res, fmt.Sprintf("%s is already %s", s.Label(), target))
	}
	if target == models.StartupDisabled && !s.CanDisable {
		return fail(res, &ValidationError{Field: "entry", Message: fmt.Sprintf("%s cannot be disabled", s.Label())})
	}
	if err := x.preflight(ctx, req.Action); err != nil {
		return fail(res, err)
	}
	if x.services == nil {
		return fail(res, &MutationError{EntryID: s.ID, Action: req.Action, Err: errors.New("no service capability")})
	}

	if err := x.services.SetStartupType(ctx, s, target); err != nil {
		return fail(res, &MutationError{EntryID: s.ID, Action: req.Action, Err: err})
	}

	lease.UpdateService(func(stored *models.ServiceEntry) { stored.SetStartupType(target) })
	res.Success = true
	res.Changed = true
	res.StartupType = target
	res.Status = models.StatusForStartupType(target)
	res.Message = fmt.Sprintf("%s startup type is now %s", s.Label(), target)
	return res
}

// preflight runs the checks shared by every state-changing call.
func (x *Executor) preflight(ctx context.Context, action models.Action) error {
	if privilege.RequiresElevation(action) && !x.gate.IsElevated() {
		return &PrivilegeError{Action: action}
	}
	return ctx.Err()
}

func noop(res Result, msg string) Result {
	res.Success = true
	res.Message = msg
	return res
}

func fail(res Result, err error) Result {
	res.Success = false
	res.Err = err
	res.Message = err.Error()
	return res
}

func (x *Executor) finish(opID string, logger *slog.Logger, start time.Time, res *Result) {
	took := time.Since(start)
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	details := map[string]any{
		"entryId": res.EntryID,
		"action":  string(res.Action),
		"status":  res.Status.String(),
		"message": res.Message,
	}
	if res.StartupType != "" {
		details["startupType"] = string(res.StartupType)
	}

	var mutErr *MutationError
	switch {
	case res.Err == nil && res.Changed:
		x.audit.Log(audit.EventOptimizeApplied, opID, details)
		logger.Info("optimization applied", "status", res.Status.String(), logging.KeyDurationMs, took.Milliseconds())
	case res.Err == nil:
		x.audit.Log(audit.EventOptimizeNoop, opID, details)
		logger.Debug("optimization not needed", "message", res.Message)
	case errors.As(res.Err, &mutErr):
		details["error"] = res.Error
		x.audit.Log(audit.EventOptimizeFailed, opID, details)
		logger.Error("optimization failed", logging.KeyError, res.Err, logging.KeyDurationMs, took.Milliseconds())
	default:
		details["error"] = res.Error
		x.audit.Log(audit.EventOptimizeRejected, opID, details)
		logger.Warn("optimization rejected", logging.KeyError, res.Err)
	}
}

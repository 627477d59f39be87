package collectors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
)

// approvalStore flips the Explorer enable/disable choice of a registration.
type approvalStore interface {
	SetApproved(ref AutorunRef, enabled bool) error
}

// delayMarkerStore remembers which disabled registrations are launched by a
// logon task instead, keyed by delayMarkerName.
type delayMarkerStore interface {
	Lookup(name string) (int, bool)
	Write(name string, seconds int) error
	Delete(name string) error
}

// logonTasks keeps the approval value, the logon task and the delay marker
// of an entry consistent. A failed mutation restores whatever it already
// changed before returning.
type logonTasks struct {
	run       commandRunner
	approvals approvalStore
	markers   delayMarkerStore
}

func (t *logonTasks) disable(ctx context.Context, ref AutorunRef) error {
	return t.setApproved(ctx, ref, false)
}

func (t *logonTasks) enable(ctx context.Context, ref AutorunRef) error {
	return t.setApproved(ctx, ref, true)
}

func (t *logonTasks) setApproved(ctx context.Context, ref AutorunRef, enabled bool) error {
	prev, cleared, err := t.clearDelay(ctx, ref)
	if err != nil {
		return err
	}
	if err := t.approvals.SetApproved(ref, enabled); err != nil {
		if cleared {
			err = errors.Join(err, t.restoreDelay(context.WithoutCancel(ctx), ref, prev))
		}
		return err
	}
	return nil
}

// delay registers a logon task that starts the command after seconds, then
// records the marker and disables the original registration.
func (t *logonTasks) delay(ctx context.Context, ref AutorunRef, seconds int) error {
	if shellMetacharRegex.MatchString(ref.Name) {
		return fmt.Errorf("invalid characters in startup item name")
	}
	name := delayMarkerName(ref.Origin, ref.Name)
	task := delayedTaskName(ref.Origin, ref.Name)
	prev, hadPrev := t.markers.Lookup(name)

	if err := t.createTask(ctx, ref, seconds); err != nil {
		return fmt.Errorf("create delayed task: %w", err)
	}

	rollback := context.WithoutCancel(ctx)
	undoTask := func() error {
		if hadPrev {
			return t.createTask(rollback, ref, prev)
		}
		return t.deleteTask(rollback, task)
	}

	if err := t.markers.Write(name, seconds); err != nil {
		return errors.Join(fmt.Errorf("record delay: %w", err), undoTask())
	}
	if err := t.approvals.SetApproved(ref, false); err != nil {
		var undoMarker error
		if hadPrev {
			undoMarker = t.markers.Write(name, prev)
		} else {
			undoMarker = t.markers.Delete(name)
		}
		return errors.Join(err, undoMarker, undoTask())
	}
	return nil
}

// clearDelay removes the logon task and marker of a delayed entry. It
// reports the delay that was cleared so callers can put it back.
func (t *logonTasks) clearDelay(ctx context.Context, ref AutorunRef) (int, bool, error) {
	name := delayMarkerName(ref.Origin, ref.Name)
	secs, ok := t.markers.Lookup(name)
	if !ok {
		return 0, false, nil
	}
	if err := t.deleteTask(ctx, delayedTaskName(ref.Origin, ref.Name)); err != nil {
		return 0, false, fmt.Errorf("remove delayed task: %w", err)
	}
	if err := t.markers.Delete(name); err != nil {
		return 0, false, errors.Join(
			fmt.Errorf("remove delay marker: %w", err),
			t.createTask(context.WithoutCancel(ctx), ref, secs),
		)
	}
	return secs, true, nil
}

func (t *logonTasks) restoreDelay(ctx context.Context, ref AutorunRef, seconds int) error {
	if err := t.createTask(ctx, ref, seconds); err != nil {
		return err
	}
	return t.markers.Write(delayMarkerName(ref.Origin, ref.Name), seconds)
}

func (t *logonTasks) createTask(ctx context.Context, ref AutorunRef, seconds int) error {
	_, err := t.run(ctx, "schtasks.exe", "/create", "/f",
		"/tn", delayedTaskName(ref.Origin, ref.Name), "/tr", taskCommand(ref),
		"/sc", "onlogon", "/delay", formatTaskDelay(seconds), "/rl", "limited")
	return err
}

// deleteTask removes a logon task. A task that is already gone counts as
// removed.
func (t *logonTasks) deleteTask(ctx context.Context, task string) error {
	_, err := t.run(ctx, "schtasks.exe", "/delete", "/f", "/tn", task)
	if err != nil && taskMissing(err) {
		log.Debug("delayed task already removed", "task", task, logging.KeyError, err)
		return nil
	}
	return err
}

func taskMissing(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "cannot find")
}

// taskCommand is the command line the logon task runs: the registered
// command with its arguments, or the quoted program path.
func taskCommand(ref AutorunRef) string {
	if c := strings.TrimSpace(ref.Command); c != "" {
		return c
	}
	path := ref.ExecutablePath
	if path == "" {
		path = ref.Origin
	}
	return `"` + path + `"`
}

func delayMarkerName(origin, name string) string {
	return strings.ToLower(origin) + "|" + strings.ToLower(name)
}

package optimizer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breeze-rmm/startup-optimizer/internal/inventory"
	"github.com/breeze-rmm/startup-optimizer/internal/privilege"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

var (
	idX       = models.AutorunID("run", "X")
	idOff     = models.AutorunID("run", "Off")
	idShell   = models.AutorunID("run", "explorer")
	idCups    = models.ServiceID("cups")
	idProtSvc = models.ServiceID("wuauserv")
)

type fakeMutator struct {
	mu       sync.Mutex
	calls    []string
	err      error
	panicMsg string
	block    chan struct{}
	started  chan struct{}
	count    atomic.Int32
}

func (f *fakeMutator) record(call string) error {
	f.count.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return f.err
}

func (f *fakeMutator) Disable(_ context.Context, e models.StartupEntry) error {
	return f.record("disable " + e.Name)
}

func (f *fakeMutator) Enable(_ context.Context, e models.StartupEntry) error {
	return f.record("enable " + e.Name)
}

func (f *fakeMutator) Delay(_ context.Context, e models.StartupEntry, seconds int) error {
	return f.record("delay " + e.Name)
}

func (f *fakeMutator) SetStartupType(_ context.Context, s models.ServiceEntry, t models.StartupType) error {
	return f.record(string(t) + " " + s.ServiceName)
}

func newRepo() *inventory.Repository {
	x := models.StartupEntry{ID: idX, Name: "X", Origin: "run", LoadTimeSeconds: 6}
	x.SetStatus(models.Enabled())
	off := models.StartupEntry{ID: idOff, Name: "Off", Origin: "run"}
	off.SetStatus(models.Disabled())
	shell := models.StartupEntry{ID: idShell, Name: "explorer", Origin: "run", Protected: true}
	shell.SetStatus(models.Enabled())

	cups := models.ServiceEntry{ID: idCups, ServiceName: "cups"}
	cups.SetStartupType(models.StartupAutomatic)
	prot := models.ServiceEntry{ID: idProtSvc, ServiceName: "wuauserv", Protected: true}
	prot.SetStartupType(models.StartupAutomatic)

	repo := inventory.NewRepository()
	repo.Replace(&models.StartupProfile{
		Autoruns: []models.StartupEntry{x, off, shell},
		Services: []models.ServiceEntry{cups, prot},
	})
	return repo
}

func newTestExecutor(elevated bool) (*Executor, *inventory.Repository, *fakeMutator) {
	repo := newRepo()
	m := &fakeMutator{}
	return NewExecutor(repo, privilege.NewStatic(elevated), m, m, nil), repo, m
}

func lookupAutorun(t *testing.T, repo *inventory.Repository, id string) models.StartupEntry {
	t.Helper()
	e, ok := repo.Lookup(id)
	require.True(t, ok)
	require.NotNil(t, e.Autorun)
	return *e.Autorun
}

func TestDisableAutorun(t *testing.T) {
	x, repo, m := newTestExecutor(true)

	res := x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionDisable})
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.True(t, res.Changed)
	assert.Equal(t, models.Disabled(), res.Status)
	assert.Equal(t, []string{"disable X"}, m.calls)

	e := lookupAutorun(t, repo, idX)
	assert.Equal(t, models.Disabled(), e.Status)
	assert.False(t, e.CanDisable)
	assert.False(t, e.CanDelay)
}

func TestDisableIsIdempotent(t *testing.T) {
	x, repo, m := newTestExecutor(true)

	first := x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionDisable})
	require.True(t, first.Success)
	second := x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionDisable})
	assert.True(t, second.Success)
	assert.False(t, second.Changed)
	assert.Equal(t, models.Disabled(), second.Status)
	assert.Equal(t, int32(1), m.count.Load(), "capability called once")
	assert.Equal(t, models.Disabled(), lookupAutorun(t, repo, idX).Status)
}

func TestDisableAlreadyDisabledSkipsPrivilegeCheck(t *testing.T) {
	x, _, m := newTestExecutor(false)
	res := x.Execute(context.Background(), Request{EntryID: idOff, Action: models.ActionDisable})
	assert.True(t, res.Success)
	assert.Zero(t, m.count.Load())
}

func TestDelayBounds(t *testing.T) {
	tests := []struct {
		name    string
		seconds int
		wantErr bool
	}{
		{"zero", 0, true},
		{"negative", -5, true},
		{"too long", 301, true},
		{"min", 1, false},
		{"max", 300, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, repo, m := newTestExecutor(true)
			res := x.Execute(context.Background(), Request{
				EntryID: idX,
				Action:  models.ActionDelay,
				Params:  Params{DelaySeconds: tt.seconds},
			})
			e := lookupAutorun(t, repo, idX)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, res.Err, &verr)
				assert.Equal(t, "delaySeconds", verr.Field)
				assert.False(t, res.Success)
				assert.Zero(t, m.count.Load())
				assert.Equal(t, models.Enabled(), e.Status)
				return
			}
			require.NoError(t, res.Err)
			assert.Equal(t, models.Delayed(tt.seconds), e.Status)
			assert.True(t, e.CanDelay)
		})
	}
}

func TestDelayValidationPrecedesPrivilege(t *testing.T) {
	x, _, _ := newTestExecutor(false)
	res := x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionDelay})
	var verr *ValidationError
	assert.ErrorAs(t, res.Err, &verr)
}

func TestDelayDisabledEntryRejected(t *testing.T) {
	x, _, m := newTestExecutor(true)
	res := x.Execute(context.Background(), Request{EntryID: idOff, Action: models.ActionDelay, Params: Params{DelaySeconds: 30}})
	var verr *ValidationError
	require.ErrorAs(t, res.Err, &verr)
	assert.Equal(t, "entry", verr.Field)
	assert.Zero(t, m.count.Load())
}

func TestDelaySameValueIsNoop(t *testing.T) {
	x, _, m := newTestExecutor(true)
	req := Request{EntryID: idX, Action: models.ActionDelay, Params: Params{DelaySeconds: 30}}
	require.True(t, x.Execute(context.Background(), req).Success)
	res := x.Execute(context.Background(), req)
	assert.True(t, res.Success)
	assert.False(t, res.Changed)
	assert.Equal(t, int32(1), m.count.Load())

	req.Params.DelaySeconds = 60
	res = x.Execute(context.Background(), req)
	assert.True(t, res.Changed)
	assert.Equal(t, models.Delayed(60), res.Status)
}

func TestEnableRestoresEntry(t *testing.T) {
	x, repo, _ := newTestExecutor(true)
	res := x.Execute(context.Background(), Request{EntryID: idOff, Action: models.ActionEnable})
	require.NoError(t, res.Err)
	e := lookupAutorun(t, repo, idOff)
	assert.Equal(t, models.Enabled(), e.Status)
	assert.True(t, e.CanDisable)

	again := x.Execute(context.Background(), Request{EntryID: idOff, Action: models.ActionEnable})
	assert.True(t, again.Success)
	assert.False(t, again.Changed)
}

func TestPrivilegeRequired(t *testing.T) {
	x, repo, m := newTestExecutor(false)
	res := x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionDisable})

	var perr *PrivilegeError
	require.ErrorAs(t, res.Err, &perr)
	assert.Equal(t, models.ActionDisable, perr.Action)
	assert.False(t, res.Success)
	assert.Equal(t, models.Enabled(), res.Status)
	assert.Zero(t, m.count.Load())
	assert.Equal(t, models.Enabled(), lookupAutorun(t, repo, idX).Status)
}

func TestProtectedEntryCannotBeDisabled(t *testing.T) {
	x, _, m := newTestExecutor(true)
	res := x.Execute(context.Background(), Request{EntryID: idShell, Action: models.ActionDisable})
	var verr *ValidationError
	require.ErrorAs(t, res.Err, &verr)
	res = x.Execute(context.Background(), Request{EntryID: idShell, Action: models.ActionDelay, Params: Params{DelaySeconds: 10}})
	require.ErrorAs(t, res.Err, &verr)
	res = x.Execute(context.Background(), Request{EntryID: idProtSvc, Action: models.ActionDisable})
	require.ErrorAs(t, res.Err, &verr)
	assert.Zero(t, m.count.Load())
}

func TestMutationFailureLeavesEntryUntouched(t *testing.T) {
	x, repo, m := newTestExecutor(true)
	m.err = errors.New("access denied")

	res := x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionDisable})
	var merr *MutationError
	require.ErrorAs(t, res.Err, &merr)
	assert.Equal(t, idX, merr.EntryID)
	assert.ErrorIs(t, res.Err, m.err)
	assert.Equal(t, "disable "+idX+": access denied", res.Error)
	assert.False(t, res.Success)
	assert.Equal(t, models.Enabled(), lookupAutorun(t, repo, idX).Status)

	// The lease was released; a retry after the fault clears succeeds.
	m.err = nil
	assert.True(t, x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionDisable}).Success)
}

func TestPanickingCapabilityIsReported(t *testing.T) {
	x, repo, m := newTestExecutor(true)
	m.panicMsg = "boom"

	res := x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionDisable})
	var merr *MutationError
	require.ErrorAs(t, res.Err, &merr)
	assert.Contains(t, res.Message, "boom")
	assert.Equal(t, models.Enabled(), lookupAutorun(t, repo, idX).Status)

	_, err := repo.Acquire(idX)
	assert.NoError(t, err, "lease released after panic")
}

func TestUnknownEntryAndAction(t *testing.T) {
	x, _, _ := newTestExecutor(true)
	res := x.Execute(context.Background(), Request{EntryID: "autorun:nope|x", Action: models.ActionDisable})
	assert.ErrorIs(t, res.Err, ErrEntryNotFound)
	assert.False(t, res.Busy)

	res = x.Execute(context.Background(), Request{EntryID: idX, Action: models.Action("reboot")})
	var verr *ValidationError
	require.ErrorAs(t, res.Err, &verr)
	assert.Equal(t, "action", verr.Field)

	res = x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionConfigureService, Params: Params{StartupType: models.StartupManual}})
	require.ErrorAs(t, res.Err, &verr)
}

func TestActionMustMatchEntryKind(t *testing.T) {
	x, _, m := newTestExecutor(false)
	var verr *ValidationError

	// Rejected before the lease and privilege checks.
	res := x.Execute(context.Background(), Request{EntryID: idCups, Action: models.ActionDelay, Params: Params{DelaySeconds: 30}})
	require.ErrorAs(t, res.Err, &verr)
	assert.Equal(t, "action", verr.Field)

	res = x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionConfigureService, Params: Params{StartupType: models.StartupManual}})
	require.ErrorAs(t, res.Err, &verr)
	assert.Equal(t, "action", verr.Field)

	assert.Zero(t, m.count.Load())
}

func TestCancelledContextDoesNotMutate(t *testing.T) {
	x, _, m := newTestExecutor(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := x.Execute(ctx, Request{EntryID: idX, Action: models.ActionDisable})
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, m.count.Load())
}

func TestServiceActions(t *testing.T) {
	x, repo, m := newTestExecutor(true)

	res := x.Execute(context.Background(), Request{
		EntryID: idCups,
		Action:  models.ActionConfigureService,
		Params:  Params{StartupType: models.StartupManual},
	})
	require.NoError(t, res.Err)
	assert.Equal(t, models.StartupManual, res.StartupType)
	assert.Equal(t, models.Enabled(), res.Status)

	res = x.Execute(context.Background(), Request{EntryID: idCups, Action: models.ActionDisable})
	require.NoError(t, res.Err)
	assert.Equal(t, models.StartupDisabled, res.StartupType)
	assert.Equal(t, models.Disabled(), res.Status)

	e, ok := repo.Lookup(idCups)
	require.True(t, ok)
	assert.Equal(t, models.StartupDisabled, e.Service.StartupType)
	assert.False(t, e.Service.CanDisable)

	res = x.Execute(context.Background(), Request{EntryID: idCups, Action: models.ActionEnable})
	require.NoError(t, res.Err)
	assert.Equal(t, models.StartupAutomatic, res.StartupType)

	assert.Equal(t, []string{"manual cups", "disabled cups", "automatic cups"}, m.calls)
}

func TestServiceConfigureValidation(t *testing.T) {
	x, _, m := newTestExecutor(true)
	res := x.Execute(context.Background(), Request{
		EntryID: idCups,
		Action:  models.ActionConfigureService,
		Params:  Params{StartupType: "boot"},
	})
	var verr *ValidationError
	require.ErrorAs(t, res.Err, &verr)
	assert.Equal(t, "startupType", verr.Field)

	res = x.Execute(context.Background(), Request{EntryID: idCups, Action: models.ActionDelay, Params: Params{DelaySeconds: 30}})
	require.ErrorAs(t, res.Err, &verr)

	res = x.Execute(context.Background(), Request{
		EntryID: idCups,
		Action:  models.ActionConfigureService,
		Params:  Params{StartupType: models.StartupAutomatic},
	})
	assert.True(t, res.Success)
	assert.False(t, res.Changed)
	assert.Zero(t, m.count.Load())
}

func TestConcurrentRequestsExactlyOneTransition(t *testing.T) {
	repo := newRepo()
	m := &fakeMutator{block: make(chan struct{}), started: make(chan struct{}, 1)}
	x := NewExecutor(repo, privilege.NewStatic(true), m, m, nil)

	first := make(chan Result, 1)
	go func() {
		first <- x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionDisable})
	}()
	<-m.started

	const n = 8
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = x.Execute(context.Background(), Request{EntryID: idX, Action: models.ActionDisable})
		}(i)
	}
	wg.Wait()
	close(m.block)

	for _, r := range results {
		assert.False(t, r.Success)
		assert.True(t, r.Busy)
		assert.ErrorIs(t, r.Err, ErrEntryBusy)
	}
	winner := <-first
	assert.True(t, winner.Success)
	assert.True(t, winner.Changed)
	assert.Equal(t, int32(1), m.count.Load())
	assert.Equal(t, models.Disabled(), lookupAutorun(t, repo, idX).Status)
}

package collectors

import (
	"context"
	"sync"

	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

type fakeAutoruns struct {
	mu       sync.Mutex
	records  []AutorunRecord
	err      error
	block    chan struct{}
	disabled []AutorunRef
	delays   map[string]int
}

func (f *fakeAutoruns) ListAutoruns(ctx context.Context) ([]AutorunRecord, error) {
	if f.block != nil {
		<-f.block
	}
	return f.records, f.err
}

func (f *fakeAutoruns) DisableAutorun(ctx context.Context, ref AutorunRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled = append(f.disabled, ref)
	return f.err
}

func (f *fakeAutoruns) EnableAutorun(ctx context.Context, ref AutorunRef) error {
	return f.err
}

func (f *fakeAutoruns) DelayAutorun(ctx context.Context, ref AutorunRef, seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delays == nil {
		f.delays = make(map[string]int)
	}
	f.delays[ref.Name] = seconds
	return f.err
}

type fakeServices struct {
	records []ServiceRecord
	err     error
	set     map[string]models.StartupType
}

func (f *fakeServices) ListServices(ctx context.Context) ([]ServiceRecord, error) {
	return f.records, f.err
}

func (f *fakeServices) SetStartupType(ctx context.Context, name string, t models.StartupType) error {
	if f.err != nil {
		return f.err
	}
	if f.set == nil {
		f.set = make(map[string]models.StartupType)
	}
	f.set[name] = t
	return nil
}

type fakeEvents struct {
	events []models.BootEvent
	err    error
	panic  bool
}

func (f *fakeEvents) ReadBootEvents(ctx context.Context) ([]models.BootEvent, error) {
	if f.panic {
		panic("event log handle closed")
	}
	return f.events, f.err
}

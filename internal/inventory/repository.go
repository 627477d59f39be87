// Package inventory holds the live startup entries of the latest scan and
// hands out exclusive per-entry leases to mutators.
package inventory

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

var log = logging.L("inventory")

var (
	ErrNotFound = errors.New("entry not found")
	ErrBusy     = errors.New("entry busy: another operation is in progress")
)

// Entry is a copy of one live entry. Exactly one of Autorun and Service is set.
type Entry struct {
	Kind    models.EntryKind
	Autorun *models.StartupEntry
	Service *models.ServiceEntry
}

// Name returns the display name of the entry.
func (e Entry) Name() string {
	switch {
	case e.Autorun != nil:
		return e.Autorun.Name
	case e.Service != nil:
		return e.Service.Label()
	}
	return ""
}

// Status returns the current launch status of the entry.
func (e Entry) Status() models.Status {
	switch {
	case e.Autorun != nil:
		return e.Autorun.Status
	case e.Service != nil:
		return e.Service.Status
	}
	return models.Status{}
}

type record struct {
	inflight atomic.Bool
	mu       sync.RWMutex
	kind     models.EntryKind
	autorun  models.StartupEntry
	service  models.ServiceEntry
}

func (r *record) copy() Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := Entry{Kind: r.kind}
	if r.kind == models.KindAutorun {
		a := r.autorun
		e.Autorun = &a
	} else {
		s := r.service
		e.Service = &s
	}
	return e
}

// Repository owns the entries of the most recent scan. Snapshots and
// lookups return copies; only a Lease can change a stored entry.
type Repository struct {
	mu       sync.RWMutex
	profile  *models.StartupProfile // scan metadata and boot events
	autoruns []string               // ids in rank order
	services []string
	records  map[string]*record
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{records: make(map[string]*record)}
}

// Replace installs the entries of a new scan. Records whose id survives the
// rescan are updated in place so leases held across a scan keep excluding
// other mutators. Duplicate ids keep the first occurrence.
func (r *Repository) Replace(p *models.StartupProfile) {
	if p == nil {
		return
	}
	p = p.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*record, len(p.Autoruns)+len(p.Services))
	autoruns := make([]string, 0, len(p.Autoruns))
	for _, a := range p.Autoruns {
		if _, dup := next[a.ID]; dup {
			log.Warn("duplicate entry id in scan, keeping first", logging.KeyEntryID, a.ID)
			continue
		}
		rec := r.reuse(a.ID, models.KindAutorun)
		rec.mu.Lock()
		rec.autorun = a
		rec.mu.Unlock()
		next[a.ID] = rec
		autoruns = append(autoruns, a.ID)
	}
	services := make([]string, 0, len(p.Services))
	for _, s := range p.Services {
		if _, dup := next[s.ID]; dup {
			log.Warn("duplicate entry id in scan, keeping first", logging.KeyEntryID, s.ID)
			continue
		}
		rec := r.reuse(s.ID, models.KindService)
		rec.mu.Lock()
		rec.service = s
		rec.mu.Unlock()
		next[s.ID] = rec
		services = append(services, s.ID)
	}

	p.Autoruns = nil
	p.Services = nil
	r.profile = p
	r.records = next
	r.autoruns = autoruns
	r.services = services
}

func (r *Repository) reuse(id string, kind models.EntryKind) *record {
	if rec, ok := r.records[id]; ok && rec.kind == kind {
		return rec
	}
	return &record{kind: kind}
}

// Snapshot returns a copy of the latest profile carrying the current entry
// values, or nil before the first scan.
func (r *Repository) Snapshot() *models.StartupProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.profile == nil {
		return nil
	}
	p := r.profile.Clone()
	p.Autoruns = make([]models.StartupEntry, 0, len(r.autoruns))
	for _, id := range r.autoruns {
		p.Autoruns = append(p.Autoruns, *r.records[id].copy().Autorun)
	}
	p.Services = make([]models.ServiceEntry, 0, len(r.services))
	for _, id := range r.services {
		p.Services = append(p.Services, *r.records[id].copy().Service)
	}
	return p
}

// Lookup returns a copy of the entry with the given id.
func (r *Repository) Lookup(id string) (Entry, bool) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	return rec.copy(), true
}

// Acquire takes the exclusive mutation lease on an entry. It never blocks:
// a second caller gets ErrBusy until the first calls Release.
func (r *Repository) Acquire(id string) (*Lease, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !rec.inflight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return &Lease{rec: rec}, nil
}

// Lease is the exclusive right to mutate one entry.
type Lease struct {
	rec      *record
	released atomic.Bool
}

// Entry returns a copy of the leased entry's current value.
func (l *Lease) Entry() Entry { return l.rec.copy() }

// UpdateAutorun applies fn to the stored autorun entry under the record lock.
func (l *Lease) UpdateAutorun(fn func(*models.StartupEntry)) {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	fn(&l.rec.autorun)
}

// UpdateService applies fn to the stored service entry under the record lock.
func (l *Lease) UpdateService(fn func(*models.ServiceEntry)) {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	fn(&l.rec.service)
}

// Release gives the lease back. Calling it more than once is a no-op.
func (l *Lease) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.rec.inflight.Store(false)
	}
}

package health

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEmptyMonitorIsUnknown(t *testing.T) {
	r := NewMonitor().Summary()
	if r.Status != Unknown {
		t.Fatalf("Summary().Status on empty monitor = %q, want %q", r.Status, Unknown)
	}
	if len(r.Sources) != 0 {
		t.Fatalf("Summary().Sources = %v, want empty", r.Sources)
	}
}

func TestSummaryReturnsWorstStatus(t *testing.T) {
	m := NewMonitor()
	m.RecordCollection("a", 3, time.Millisecond, nil)
	m.RecordCollection("b", 0, time.Millisecond, nil)
	m.RecordCollection("c", 1, time.Millisecond, nil)

	if got := m.Summary().Status; got != Degraded {
		t.Fatalf("Status = %q, want %q", got, Degraded)
	}

	m.RecordCollection("c", 0, time.Second, errors.New("down"))
	if got := m.Summary().Status; got != Unhealthy {
		t.Fatalf("Status = %q, want %q", got, Unhealthy)
	}
}

func TestStatusRanking(t *testing.T) {
	order := []Status{Healthy, Degraded, Unhealthy, Unknown}
	for i := 1; i < len(order); i++ {
		if !worse(order[i], order[i-1]) {
			t.Errorf("%q should rank worse than %q", order[i], order[i-1])
		}
	}
}

func TestSummaryAtomicity(t *testing.T) {
	m := NewMonitor()
	m.RecordCollection("autoruns", 1, time.Millisecond, nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.RecordCollection("autoruns", 0, time.Millisecond, nil)
			} else {
				m.RecordCollection("autoruns", 1, time.Millisecond, nil)
			}
		}(i)
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := m.Summary()
			// With one source the overall status must match it.
			if len(r.Sources) != 1 || r.Status != r.Sources[0].Status {
				t.Errorf("summary inconsistency: %+v", r)
			}
		}()
	}

	wg.Wait()
}

func TestRecordCollection(t *testing.T) {
	m := NewMonitor()
	fixed := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	m.RecordCollection("services", 0, 5*time.Second, errors.New("source timed out"))
	m.RecordCollection("autoruns", 12, 40*time.Millisecond, nil)
	m.RecordCollection("boot_events", 0, time.Millisecond, nil)

	r := m.Summary()
	if len(r.Sources) != 3 || r.Sources[0].Name != "autoruns" || r.Sources[2].Name != "services" {
		t.Fatalf("Sources not sorted by name: %+v", r.Sources)
	}

	c := r.Sources[0]
	if c.Status != Healthy || c.Items != 12 || c.Duration != 40*time.Millisecond {
		t.Fatalf("autoruns check = %+v", c)
	}
	if !c.UpdatedAt.Equal(fixed) {
		t.Fatalf("UpdatedAt = %v, want %v", c.UpdatedAt, fixed)
	}
	if c := r.Sources[1]; c.Status != Degraded {
		t.Fatalf("empty source status = %q, want %q", c.Status, Degraded)
	}
	if c := r.Sources[2]; c.Status != Unhealthy || c.Message != "source timed out" {
		t.Fatalf("failed source check = %+v", c)
	}
	if r.Status != Unhealthy {
		t.Fatalf("Status = %q, want %q", r.Status, Unhealthy)
	}
}

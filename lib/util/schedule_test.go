package util

import (
	"sort"
	"testing"
	"time"
)

var base = time.Unix(1_700_000_000, 0)

func at(ms int) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }

// TestNewSchedule tests the creation of a new Schedule
func TestNewSchedule(t *testing.T) {
	s := NewSchedule()
	if s == nil {
		t.Fatal("NewSchedule() returned nil")
	}
	if s.Len() != 0 {
		t.Errorf("New schedule should be empty, but has length %d", s.Len())
	}
	if _, _, ok := s.Next(); ok {
		t.Error("Next on empty schedule should return ok=false")
	}
	if _, ok := s.Until(base); ok {
		t.Error("Until on empty schedule should return ok=false")
	}
}

// TestSetAndNext tests that the earliest deadline is always first
func TestSetAndNext(t *testing.T) {
	s := NewSchedule()
	s.Set(1, at(100))
	s.Set(2, at(200))
	s.Set(3, at(50))

	if s.Len() != 3 {
		t.Errorf("Schedule should have 3 keys, but has %d", s.Len())
	}
	for _, k := range []int{1, 2, 3} {
		if !s.Contains(k) {
			t.Errorf("Schedule should contain key %d", k)
		}
	}

	key, due, ok := s.Next()
	if !ok || key != 3 || !due.Equal(at(50)) {
		t.Errorf("Expected (3, +50ms), got (%d, %v)", key, due)
	}
}

// TestReschedule tests replacing an existing deadline
func TestReschedule(t *testing.T) {
	s := NewSchedule()
	s.Set(1, at(100))
	s.Set(2, at(200))

	s.Set(1, at(300))
	if due, _ := s.Due(1); !due.Equal(at(300)) {
		t.Errorf("Key 1 should be due at +300ms, got %v", due)
	}
	if key, _, _ := s.Next(); key != 2 {
		t.Errorf("Next key should now be 2, got %d", key)
	}

	s.Set(2, at(400))
	if key, _, _ := s.Next(); key != 1 {
		t.Errorf("Next key should now be 1, got %d", key)
	}
	if s.Len() != 2 {
		t.Errorf("Rescheduling must not add entries, got %d", s.Len())
	}
}

// TestRemove tests removing keys
func TestRemove(t *testing.T) {
	s := NewSchedule()
	s.Set(1, at(100))
	s.Set(2, at(200))
	s.Set(3, at(300))

	if !s.Remove(2) {
		t.Fatal("Remove should return true for a scheduled key")
	}
	if s.Len() != 2 || s.Contains(2) {
		t.Errorf("Key 2 should be gone, len=%d", s.Len())
	}
	if s.Remove(99) {
		t.Error("Remove should return false for an unknown key")
	}
	if _, ok := s.Due(2); ok {
		t.Error("Due should return ok=false for a removed key")
	}
}

// TestPopDueOrder tests that due keys are popped in deadline order and
// future keys stay scheduled
func TestPopDueOrder(t *testing.T) {
	s := NewSchedule()
	deadlines := map[int]int{5: 50, 3: 30, 1: 10, 4: 40, 2: 20, 9: 900}
	for k, ms := range deadlines {
		s.Set(k, at(ms))
	}

	var popped []int
	for {
		key, ok := s.PopDue(at(100))
		if !ok {
			break
		}
		popped = append(popped, key)
	}

	want := []int{1, 2, 3, 4, 5}
	if len(popped) != len(want) {
		t.Fatalf("Expected %d due keys, got %v", len(want), popped)
	}
	if !sort.IntsAreSorted(popped) {
		t.Errorf("Keys should be popped in deadline order, got %v", popped)
	}
	if s.Len() != 1 || !s.Contains(9) {
		t.Errorf("Only key 9 should remain scheduled")
	}

	if d, ok := s.Until(at(100)); !ok || d != 800*time.Millisecond {
		t.Errorf("Expected 800ms until key 9, got %v", d)
	}
	if d, _ := s.Until(at(1000)); d != 0 {
		t.Errorf("Until should clamp overdue deadlines to 0, got %v", d)
	}
}

// TestLargeNumberOfKeys tests ordering with many keys
func TestLargeNumberOfKeys(t *testing.T) {
	s := NewSchedule()
	const n = 1000
	for i := 0; i < n; i++ {
		// spread deadlines in a non monotonic pattern
		s.Set(i, at((i*7919)%n))
	}

	last := time.Time{}
	count := 0
	for {
		key, due, ok := s.Next()
		if !ok {
			break
		}
		if due.Before(last) {
			t.Fatalf("Deadline order violated at key %d", key)
		}
		last = due
		if _, ok := s.PopDue(due); !ok {
			t.Fatalf("PopDue should return the next key at its own deadline")
		}
		count++
	}
	if count != n {
		t.Errorf("Expected %d keys, got %d", n, count)
	}
}

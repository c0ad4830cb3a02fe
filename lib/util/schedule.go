// Package util holds small data structures shared by the transport services.
//
// Schedule is a keyed min-heap of deadlines. It combines a binary heap with a
// map so the earliest deadline is found in O(1) while a single key can still be
// rescheduled or removed in O(log n). The connect service keeps one entry per
// disconnected endpoint, keyed by the endpoint slot index, with the time of its
// next allowed connect attempt as the deadline.
//
// Complexity:
//   - Set, Remove, PopDue: O(log n)
//   - Next, Contains, Due: O(1)
//
// A Schedule is not safe for concurrent use; it is owned by one reactor loop.
//
// Example usage:
//
//	s := NewSchedule()
//	s.Set(0, time.Now())                      // try endpoint 0 right away
//	s.Set(1, time.Now().Add(time.Second))     // endpoint 1 in a second
//
//	for {
//	    key, ok := s.PopDue(time.Now())
//	    if !ok {
//	        break
//	    }
//	    // start a connect attempt for endpoint key
//	}
package util

import (
	"container/heap"
	"strconv"
	"time"
)

// entry is one scheduled key
type entry struct {
	key   int
	due   int64 // unix nanoseconds
	index int   // position in the heap, maintained by heap.Interface
}

func (e *entry) String() string {
	return "{Key: " + strconv.Itoa(e.key) + ", Due: " + time.Unix(0, e.due).Format(time.RFC3339Nano) + "}"
}

// entries implements heap.Interface ordered by deadline
type entries []*entry

func (h entries) Len() int           { return len(h) }
func (h entries) Less(i, j int) bool { return h[i].due < h[j].due }

func (h entries) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entries) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entries) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // Avoid memory leak
	e.index = -1
	*h = old[:n-1]
	return e
}

// Schedule orders keys by their next deadline
type Schedule struct {
	heap  entries
	byKey map[int]*entry
}

// NewSchedule creates an empty schedule
func NewSchedule() *Schedule {
	return &Schedule{
		heap:  make(entries, 0),
		byKey: make(map[int]*entry),
	}
}

// Len returns the number of scheduled keys
func (s *Schedule) Len() int { return len(s.heap) }

// Set schedules key at due, replacing an existing deadline of the same key
func (s *Schedule) Set(key int, due time.Time) {
	if e, exists := s.byKey[key]; exists {
		e.due = due.UnixNano()
		heap.Fix(&s.heap, e.index)
		return
	}
	e := &entry{key: key, due: due.UnixNano()}
	heap.Push(&s.heap, e)
	s.byKey[key] = e
}

// Remove unschedules key and reports whether it was scheduled
func (s *Schedule) Remove(key int) bool {
	e, exists := s.byKey[key]
	if !exists {
		return false
	}
	heap.Remove(&s.heap, e.index)
	delete(s.byKey, key)
	return true
}

// Contains checks if key is scheduled
func (s *Schedule) Contains(key int) bool {
	_, exists := s.byKey[key]
	return exists
}

// Due returns the deadline of key
func (s *Schedule) Due(key int) (time.Time, bool) {
	e, exists := s.byKey[key]
	if !exists {
		return time.Time{}, false
	}
	return time.Unix(0, e.due), true
}

// Next returns the key with the earliest deadline without removing it
func (s *Schedule) Next() (int, time.Time, bool) {
	if len(s.heap) == 0 {
		return 0, time.Time{}, false
	}
	e := s.heap[0]
	return e.key, time.Unix(0, e.due), true
}

// PopDue removes and returns the earliest key whose deadline is not after now
func (s *Schedule) PopDue(now time.Time) (int, bool) {
	if len(s.heap) == 0 || s.heap[0].due > now.UnixNano() {
		return 0, false
	}
	e := heap.Pop(&s.heap).(*entry)
	delete(s.byKey, e.key)
	return e.key, true
}

// Until returns how long until the earliest deadline, clamped at 0.
// The second return value is false for an empty schedule.
func (s *Schedule) Until(now time.Time) (time.Duration, bool) {
	_, due, ok := s.Next()
	if !ok {
		return 0, false
	}
	if d := due.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}

package base

import (
	"github.com/ValentinKolb/dTCP/rpc/common"
)

// slab is the fixed capacity connection table of the listen service.
// Ids are generation-tagged indexes: removing a record bumps the generation
// of its slot, so a stale id never resolves to the next tenant of the slot.
// Generation 0 is never handed out, which keeps common.ListenerID free.
type slab struct {
	slots    []slabSlot
	free     []uint32
	live     int
	capacity int
}

type slabSlot struct {
	gen  uint32
	conn *conn
}

func newSlab(capacity int) *slab {
	return &slab{
		slots:    make([]slabSlot, 0, min(capacity, 1024)),
		capacity: capacity,
	}
}

// insert stores c and returns its id, ok is false when the table is full
func (s *slab) insert(c *conn) (common.ConnID, bool) {
	if s.live >= s.capacity {
		return 0, false
	}

	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slabSlot{gen: 1})
	}

	slot := &s.slots[idx]
	slot.conn = c
	s.live++
	return common.MakeConnID(slot.gen, idx), true
}

// get returns the record of id or nil if id is not live
func (s *slab) get(id common.ConnID) *conn {
	idx := id.Index()
	if int(idx) >= len(s.slots) {
		return nil
	}
	slot := &s.slots[idx]
	if slot.conn == nil || slot.gen != id.Generation() {
		return nil
	}
	return slot.conn
}

// remove deletes the record of id and frees its slot for reuse
func (s *slab) remove(id common.ConnID) *conn {
	c := s.get(id)
	if c == nil {
		return nil
	}
	slot := &s.slots[id.Index()]
	slot.conn = nil
	slot.gen++
	if slot.gen == 0 {
		slot.gen = 1
	}
	s.free = append(s.free, id.Index())
	s.live--
	return c
}

func (s *slab) len() int   { return s.live }
func (s *slab) full() bool { return s.live >= s.capacity }

// each calls fn for every live record
func (s *slab) each(fn func(id common.ConnID, c *conn)) {
	for i := range s.slots {
		if c := s.slots[i].conn; c != nil {
			fn(common.MakeConnID(s.slots[i].gen, uint32(i)), c)
		}
	}
}

// Package router keeps the identity routing table business logic uses to
// answer messages over the connection their correlation id was last seen on.
//
// The reactor services never look at correlation ids, they only report
// connections coming and going. A Table fed with every inbound message
// (Observe) binds correlation ids of normal messages to their connection and
// drops all bindings of a connection once it closes, so a reply is never
// routed to a connection id that is gone.
//
// A Table is safe for concurrent use by many worker goroutines. Bindings of a
// connection that closes while another goroutine rebinds one of its ids are
// resolved in favor of whichever write lands last.
package router

import (
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("router")

// Table maps correlation ids to connection ids and back
type Table struct {
	routes *xsync.MapOf[uint64, common.ConnID]
	byConn *xsync.MapOf[common.ConnID, *xsync.MapOf[uint64, struct{}]]
}

// New creates an empty routing table
func New() *Table {
	return &Table{
		routes: xsync.NewMapOf[uint64, common.ConnID](),
		byConn: xsync.NewMapOf[common.ConnID, *xsync.MapOf[uint64, struct{}]](),
	}
}

// Bind routes correlation to id, replacing an earlier binding
func (t *Table) Bind(correlation uint64, id common.ConnID) {
	if old, loaded := t.routes.LoadAndStore(correlation, id); loaded && old != id {
		if set, ok := t.byConn.Load(old); ok {
			set.Delete(correlation)
		}
	}
	set, _ := t.byConn.LoadOrCompute(id, func() *xsync.MapOf[uint64, struct{}] {
		return xsync.NewMapOf[uint64, struct{}]()
	})
	set.Store(correlation, struct{}{})
}

// Lookup returns the connection correlation is bound to
func (t *Table) Lookup(correlation uint64) (common.ConnID, bool) {
	return t.routes.Load(correlation)
}

// Unbind removes the binding of correlation
func (t *Table) Unbind(correlation uint64) {
	if id, loaded := t.routes.LoadAndDelete(correlation); loaded {
		if set, ok := t.byConn.Load(id); ok {
			set.Delete(correlation)
		}
	}
}

// Forget removes every binding of id and returns how many there were
func (t *Table) Forget(id common.ConnID) int {
	set, ok := t.byConn.LoadAndDelete(id)
	if !ok {
		return 0
	}

	removed := 0
	set.Range(func(correlation uint64, _ struct{}) bool {
		// only delete if the id was not rebound to another connection meanwhile
		t.routes.Compute(correlation, func(current common.ConnID, loaded bool) (common.ConnID, bool) {
			if loaded && current == id {
				removed++
				return current, true
			}
			return current, !loaded
		})
		return true
	})
	Logger.Debugf("forgot %d routes of connection %s", removed, id)
	return removed
}

// Observe updates the table from one inbound message: normal messages with a
// non zero correlation bind it, closure events forget the connection
func (t *Table) Observe(msg common.Message) {
	switch {
	case msg.IsNormal():
		if msg.Envelope.Correlation != 0 {
			t.Bind(msg.Envelope.Correlation, msg.Conn)
		}
	case msg.Event.IsClosure():
		t.Forget(msg.Conn)
	}
}

// Route addresses env to the connection its correlation id is bound to
func (t *Table) Route(env common.Envelope) (common.Message, bool) {
	id, ok := t.Lookup(env.Correlation)
	if !ok {
		return common.Message{}, false
	}
	return common.NewNormalMessage(id, env), true
}

// Len returns the number of bound correlation ids
func (t *Table) Len() int { return t.routes.Size() }

package backend

import (
	"encoding/json"
	"sync"
)

// reply is the outcome of one request: a result, or an error
type reply struct {
	result json.RawMessage
	err    error
}

// pendingTable maps request ids to the slot awaiting their response.
// Each slot is removed exactly once.
type pendingTable struct {
	mu     sync.Mutex
	slots  map[int64]chan reply
	closed error
}

func newPendingTable() *pendingTable {
	return &pendingTable{slots: make(map[int64]chan reply)}
}

// register adds a slot for id, failing once the table is closed
func (p *pendingTable) register(id int64) (<-chan reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed != nil {
		return nil, p.closed
	}
	ch := make(chan reply, 1)
	p.slots[id] = ch
	return ch, nil
}

// remove drops the slot for id if still present
func (p *pendingTable) remove(id int64) {
	p.mu.Lock()
	delete(p.slots, id)
	p.mu.Unlock()
}

// fulfill delivers r to the slot for id. It reports false for unknown ids.
func (p *pendingTable) fulfill(id int64, r reply) bool {
	p.mu.Lock()
	ch, ok := p.slots[id]
	if ok {
		delete(p.slots, id)
	}
	p.mu.Unlock()

	if ok {
		ch <- r
	}
	return ok
}

// close fails every pending slot with err and rejects later registrations
func (p *pendingTable) close(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed != nil {
		return
	}
	p.closed = err
	for id, ch := range p.slots {
		ch <- reply{err: err}
		delete(p.slots, id)
	}
}

// outstanding reports the number of pending requests
func (p *pendingTable) outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

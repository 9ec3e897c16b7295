package main

import (
	"sync"
)

// sendBuffer is the per-connection outbound queue depth. A connection
// that falls this far behind is treated as dead and evicted.
const sendBuffer = 8

// Conn is one subscriber's outbound channel, owned by the Registry from
// Register until Unregister or eviction.
type Conn struct {
	id   string
	send chan string
}

func newConn(id string) *Conn {
	return &Conn{
		id:   id,
		send: make(chan string, sendBuffer),
	}
}

// Registry tracks every connected subscriber and fans events out to them.
// A single instance exists for the process lifetime; the endpoints receive
// it from ServePage rather than reaching for a global. Nothing survives a
// restart - the connection list is rebuilt as clients reconnect.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

func newRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Register inserts a connection unconditionally. IDs are generated fresh
// per connection, so overwriting an existing entry is acceptable.
func (reg *Registry) Register(c *Conn) {
	reg.mu.Lock()
	reg.conns[c.id] = c
	reg.mu.Unlock()
}

// Unregister removes a connection if present and closes its channel so
// the pump feeding the transport exits. Calling it again for the same id
// is a no-op.
func (reg *Registry) Unregister(id string) {
	reg.mu.Lock()
	if c, ok := reg.conns[id]; ok {
		delete(reg.conns, id)
		close(c.send)
	}
	reg.mu.Unlock()
}

// Broadcast writes payload to every registered connection and reports how
// many accepted it. A connection whose buffer is full is evicted on the
// spot and iteration continues, so one stuck client never blocks delivery
// to the rest. Delivery is at-most-once: connections not registered at
// call time are skipped, and nothing is queued or replayed.
func (reg *Registry) Broadcast(payload string) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delivered := 0
	for id, c := range reg.conns {
		select {
		case c.send <- payload:
			delivered++
		default:
			delete(reg.conns, id)
			close(c.send)
		}
	}

	return delivered
}

// Count returns the number of currently registered connections.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.conns)
}

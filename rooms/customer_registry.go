package rooms

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// customer tracks one connection's alias bindings.
type customer struct {
	mu      sync.Mutex
	aliases map[string]RoomID
	dead    bool
}

// CustomerRegistry owns the per-connection alias -> room bindings. Each
// connection mutates only its own entry, and an entry with no bindings is
// deleted rather than retained.
type CustomerRegistry struct {
	customers *xsync.MapOf[ConnectionID, *customer]
}

// NewCustomerRegistry returns an empty registry.
func NewCustomerRegistry() *CustomerRegistry {
	return &CustomerRegistry{customers: xsync.NewMapOf[ConnectionID, *customer]()}
}

// Bind records alias -> room for the connection. The same room may be
// bound under several aliases; rebinding an alias the connection already
// owns fails regardless of which room the alias points to.
func (c *CustomerRegistry) Bind(conn ConnectionID, alias string, room RoomID) error {
	for {
		entry, _ := c.customers.LoadOrStore(conn, &customer{aliases: make(map[string]RoomID)})
		entry.mu.Lock()
		if entry.dead {
			entry.mu.Unlock()
			continue
		}
		if _, exists := entry.aliases[alias]; exists {
			entry.mu.Unlock()
			return ErrDuplicateSubscription
		}
		entry.aliases[alias] = room
		entry.mu.Unlock()
		return nil
	}
}

// Unbind removes the alias binding and returns the room it pointed to.
// The connection entry disappears with its last binding.
func (c *CustomerRegistry) Unbind(conn ConnectionID, alias string) (RoomID, error) {
	entry, ok := c.customers.Load(conn)
	if !ok {
		return "", ErrUnknownConnection
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.dead {
		return "", ErrUnknownConnection
	}
	room, exists := entry.aliases[alias]
	if !exists {
		return "", ErrUnknownAlias
	}
	delete(entry.aliases, alias)
	if len(entry.aliases) == 0 {
		entry.dead = true
		c.customers.Delete(conn)
	}
	return room, nil
}

// AllRooms returns a copy of the connection's alias -> room bindings.
// An unknown connection yields an empty map, not an error.
func (c *CustomerRegistry) AllRooms(conn ConnectionID) map[string]RoomID {
	bindings := make(map[string]RoomID)
	entry, ok := c.customers.Load(conn)
	if !ok {
		return bindings
	}
	entry.mu.Lock()
	for alias, room := range entry.aliases {
		bindings[alias] = room
	}
	entry.mu.Unlock()
	return bindings
}

// DropConnection removes the connection entry entirely and returns the
// bindings it held, one per alias, for the caller to decrement.
func (c *CustomerRegistry) DropConnection(conn ConnectionID) map[string]RoomID {
	entry, ok := c.customers.LoadAndDelete(conn)
	if !ok {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.dead = true
	bindings := make(map[string]RoomID, len(entry.aliases))
	for alias, room := range entry.aliases {
		bindings[alias] = room
	}
	entry.aliases = make(map[string]RoomID)
	return bindings
}

// Count reports the number of connections with at least one binding.
func (c *CustomerRegistry) Count() int {
	return c.customers.Size()
}

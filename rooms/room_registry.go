package rooms

import (
	"context"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// Room is one unique (collection, compiled filter) pair and the set of
// bindings interested in it.
type Room struct {
	id RoomID

	mu          sync.Mutex
	aliases     map[string]int // alias -> live bindings using that name
	subscribers int
	leafPaths   []PathKey
	dead        bool
}

// RoomInfo is a read-only snapshot of a room for status reporting.
type RoomInfo struct {
	ID          RoomID   `json:"id"`
	Aliases     []string `json:"aliases"`
	Subscribers int      `json:"subscribers"`
}

// RoomRegistry owns room lifecycle: content-addressed dedup, subscriber
// refcounts and the filter-index leaves each room occupies.
type RoomRegistry struct {
	compiler Compiler
	index    *FilterIndex
	rooms    *xsync.MapOf[RoomID, *Room]
	createMu sync.Mutex
}

// NewRoomRegistry creates a registry writing its leaves into index.
func NewRoomRegistry(compiler Compiler, index *FilterIndex) *RoomRegistry {
	return &RoomRegistry{
		compiler: compiler,
		index:    index,
		rooms:    xsync.NewMapOf[RoomID, *Room](),
	}
}

// ResolveOrCreate returns the room for (collection, filter), creating it
// on first use. Compilation runs outside the create lock, bounded by ctx;
// when two connections race on a novel fingerprint the loser discards its
// compiled result and attaches to the winner's room. A compile failure
// leaves no partial room or leaf state behind.
func (r *RoomRegistry) ResolveOrCreate(ctx context.Context, collection string, filter map[string]any) (RoomID, bool, error) {
	id := Fingerprint(collection, filter)
	if _, ok := r.rooms.Load(id); ok {
		return id, false, nil
	}

	compiled, err := r.compiler.Compile(ctx, collection, filter)
	if err != nil {
		return "", false, &CompileError{Collection: collection, Reason: err}
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()
	if _, ok := r.rooms.Load(id); ok {
		return id, false, nil
	}
	room := &Room{id: id, aliases: make(map[string]int)}
	room.leafPaths = r.index.Insert(id, compiled.Leaves)
	r.rooms.Store(id, room)
	log.Debug().
		Str("room", string(id)).
		Str("collection", collection).
		Int("leaves", len(room.leafPaths)).
		Msg("Created room")
	return id, true, nil
}

// AttachAlias records one more binding under alias and bumps the
// subscriber count. Alias names are refcounted so a name shared by
// several connections stays listed until the last one leaves; re-adding
// an existing name never grows the visible alias set.
func (r *RoomRegistry) AttachAlias(id RoomID, alias string) error {
	room, ok := r.rooms.Load(id)
	if !ok {
		return ErrUnknownRoom
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.dead {
		return ErrUnknownRoom
	}
	room.aliases[alias]++
	room.subscribers++
	return nil
}

// DetachAlias drops one binding under alias and returns the remaining
// subscriber count. The last binding tears the room down: it is removed
// from the registry and every filter-index leaf it occupied is pruned,
// under the room's lock and the create lock so neither another mutation
// nor a re-create of the same fingerprint sees a half-dead room.
func (r *RoomRegistry) DetachAlias(id RoomID, alias string) (int, error) {
	room, ok := r.rooms.Load(id)
	if !ok {
		return 0, ErrUnknownRoom
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.dead {
		return 0, ErrUnknownRoom
	}

	if n := room.aliases[alias]; n <= 1 {
		delete(room.aliases, alias)
	} else {
		room.aliases[alias] = n - 1
	}
	if room.subscribers > 0 {
		room.subscribers--
	}
	if room.subscribers > 0 {
		return room.subscribers, nil
	}

	room.dead = true
	// Deleting the registry entry and pruning the leaves must be atomic
	// with respect to a resolve of the same fingerprint: a re-created
	// room reuses this id, and prunes landing after its insert would
	// strip the live room's leaves. Lock order is room.mu, createMu,
	// index.mu.
	r.createMu.Lock()
	r.rooms.Delete(id)
	for _, path := range room.leafPaths {
		r.index.Prune(path, id)
	}
	r.createMu.Unlock()
	log.Debug().Str("room", string(id)).Msg("Destroyed room")
	return 0, nil
}

// AliasesFor unions the alias sets of the given rooms, sorted. Unknown
// ids are skipped: a match computed against a snapshot may race with a
// concurrent unsubscribe.
func (r *RoomRegistry) AliasesFor(ids []RoomID) []string {
	set := make(map[string]struct{})
	for _, id := range ids {
		room, ok := r.rooms.Load(id)
		if !ok {
			continue
		}
		room.mu.Lock()
		for alias := range room.aliases {
			set[alias] = struct{}{}
		}
		room.mu.Unlock()
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count reports the number of live rooms.
func (r *RoomRegistry) Count() int {
	return r.rooms.Size()
}

// Snapshot returns a point-in-time view of every live room, sorted by id.
func (r *RoomRegistry) Snapshot() []RoomInfo {
	infos := make([]RoomInfo, 0, r.rooms.Size())
	r.rooms.Range(func(id RoomID, room *Room) bool {
		room.mu.Lock()
		info := RoomInfo{
			ID:          id,
			Subscribers: room.subscribers,
			Aliases:     make([]string, 0, len(room.aliases)),
		}
		for alias := range room.aliases {
			info.Aliases = append(info.Aliases, alias)
		}
		room.mu.Unlock()
		sort.Strings(info.Aliases)
		infos = append(infos, info)
		return true
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

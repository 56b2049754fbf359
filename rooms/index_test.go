package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eqLeaf(path PathKey, field, want string) LeafSpec {
	return LeafSpec{
		Path: path,
		Matcher: func(doc map[string]any) bool {
			v, ok := doc[field]
			return ok && v == any(want)
		},
	}
}

func TestIndexInsertAndMatch(t *testing.T) {
	idx := NewFilterIndex()
	idx.Insert("room-a", []LeafSpec{
		eqLeaf(PathKey{"orders", "status", "fp1"}, "status", "open"),
	})

	assert.Equal(t, 1, idx.Leaves())

	matched := idx.MatchRooms("orders", map[string]any{"status": "open"})
	require.Len(t, matched, 1)
	assert.Equal(t, RoomID("room-a"), matched[0])

	assert.Empty(t, idx.MatchRooms("orders", map[string]any{"status": "closed"}))
	assert.Empty(t, idx.MatchRooms("invoices", map[string]any{"status": "open"}))
}

func TestIndexMultiFieldFilterRequiresEveryLeaf(t *testing.T) {
	idx := NewFilterIndex()
	idx.Insert("room-a", []LeafSpec{
		eqLeaf(PathKey{"orders", "status", "fp1"}, "status", "open"),
		eqLeaf(PathKey{"orders", "region", "fp2"}, "region", "eu"),
	})

	// One leaf accepting is not enough for a two-leaf filter
	assert.Empty(t, idx.MatchRooms("orders", map[string]any{"status": "open"}))
	assert.Empty(t, idx.MatchRooms("orders", map[string]any{"region": "eu"}))

	matched := idx.MatchRooms("orders", map[string]any{"status": "open", "region": "eu"})
	require.Len(t, matched, 1)
	assert.Equal(t, RoomID("room-a"), matched[0])
}

func TestIndexSharedLeaf(t *testing.T) {
	idx := NewFilterIndex()
	leaf := PathKey{"orders", "status", "fp1"}
	idx.Insert("room-a", []LeafSpec{eqLeaf(leaf, "status", "open")})
	idx.Insert("room-b", []LeafSpec{eqLeaf(leaf, "status", "open")})

	// Two rooms on the same predicate share one leaf
	assert.Equal(t, 1, idx.Leaves())

	matched := idx.MatchRooms("orders", map[string]any{"status": "open"})
	assert.ElementsMatch(t, []RoomID{"room-a", "room-b"}, matched)

	// Pruning one room keeps the leaf alive for the other
	idx.Prune(leaf, "room-a")
	assert.Equal(t, 1, idx.Leaves())
	matched = idx.MatchRooms("orders", map[string]any{"status": "open"})
	assert.ElementsMatch(t, []RoomID{"room-b"}, matched)
}

func TestIndexPruneRemovesEmptyBranches(t *testing.T) {
	idx := NewFilterIndex()
	shared := PathKey{"orders", "status", "fp1"}
	own := PathKey{"orders", "region", "fp2"}
	idx.Insert("room-a", []LeafSpec{
		eqLeaf(shared, "status", "open"),
		eqLeaf(own, "region", "eu"),
	})
	idx.Insert("room-b", []LeafSpec{eqLeaf(shared, "status", "open")})
	assert.Equal(t, 2, idx.Leaves())

	idx.Prune(shared, "room-a")
	idx.Prune(own, "room-a")

	// room-a's private leaf and the now-empty region branch are gone, the
	// shared status leaf survives for room-b
	assert.Equal(t, 1, idx.Leaves())
	statusNode, ok := idx.root.children.Load("orders")
	require.True(t, ok)
	_, ok = statusNode.children.Load("region")
	assert.False(t, ok)
	_, ok = statusNode.children.Load("status")
	assert.True(t, ok)

	idx.Prune(shared, "room-b")
	assert.Equal(t, 0, idx.Leaves())
	_, ok = idx.root.children.Load("orders")
	assert.False(t, ok, "collection branch should vanish with its last leaf")
}

func TestIndexPruneMissingPathIsNoop(t *testing.T) {
	idx := NewFilterIndex()
	idx.Insert("room-a", []LeafSpec{eqLeaf(PathKey{"orders", "status", "fp1"}, "status", "open")})

	idx.Prune(PathKey{"orders", "nope", "fp9"}, "room-a")
	idx.Prune(PathKey{"invoices", "status", "fp1"}, "room-a")

	assert.Equal(t, 1, idx.Leaves())
	assert.Len(t, idx.MatchRooms("orders", map[string]any{"status": "open"}), 1)
}

func TestIndexInsertReturnsOwnedPaths(t *testing.T) {
	idx := NewFilterIndex()
	spec := eqLeaf(PathKey{"orders", "status", "fp1"}, "status", "open")
	paths := idx.Insert("room-a", []LeafSpec{spec})
	require.Len(t, paths, 1)

	// Mutating the returned path must not corrupt a later prune
	paths[0][0] = "mangled"
	idx.Prune(PathKey{"orders", "status", "fp1"}, "room-a")
	assert.Equal(t, 0, idx.Leaves())
}

package rooms

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// indexNode is a branch (children only) or a leaf (matcher plus the rooms
// sharing that predicate). Every node carries a child map; leaf nodes just
// never grow children.
type indexNode struct {
	children *xsync.MapOf[string, *indexNode]
	leaf     atomic.Pointer[indexLeaf]
}

type indexLeaf struct {
	matcher Matcher
	rooms   *xsync.MapOf[RoomID, struct{}]
}

func newIndexNode() *indexNode {
	return &indexNode{children: xsync.NewMapOf[string, *indexNode]()}
}

func (n *indexNode) empty() bool {
	return n.leaf.Load() == nil && n.children.Size() == 0
}

// FilterIndex is the compiled-filter tree keyed by collection, field path
// and predicate fingerprint. Leaves hold one field predicate and the
// non-empty set of rooms whose filters contain exactly that predicate; a
// room with a multi-field filter occupies one leaf per field and matches
// a document only when every one of its leaves accepts it.
//
// The publish-path traversal walks the xsync child maps without taking
// any lock. Structural mutation (Insert, Prune) is serialized under a
// single mutex: subscribe-path tree surgery is rare next to publish-path
// reads, and a single writer never blocks matching.
type FilterIndex struct {
	root     *indexNode
	required *xsync.MapOf[RoomID, int] // leaves a room must match
	mu       sync.Mutex
	leaves   atomic.Int64
}

// NewFilterIndex returns an empty index.
func NewFilterIndex() *FilterIndex {
	return &FilterIndex{
		root:     newIndexNode(),
		required: xsync.NewMapOf[RoomID, int](),
	}
}

// Insert adds roomID to the leaf of every spec, creating branch nodes and
// leaves along the way. It returns the exact paths occupied so the caller
// can store them on the room and prune them at teardown.
func (fi *FilterIndex) Insert(roomID RoomID, specs []LeafSpec) []PathKey {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	paths := make([]PathKey, 0, len(specs))
	for _, spec := range specs {
		if len(spec.Path) == 0 {
			continue
		}
		node := fi.root
		for _, key := range spec.Path {
			child, ok := node.children.Load(key)
			if !ok {
				child = newIndexNode()
				node.children.Store(key, child)
			}
			node = child
		}
		leaf := node.leaf.Load()
		if leaf == nil {
			leaf = &indexLeaf{
				matcher: spec.Matcher,
				rooms:   xsync.NewMapOf[RoomID, struct{}](),
			}
			node.leaf.Store(leaf)
			fi.leaves.Add(1)
		}
		leaf.rooms.Store(roomID, struct{}{})
		paths = append(paths, spec.Path.clone())
	}
	fi.required.Store(roomID, len(paths))
	return paths
}

// Prune removes roomID from the leaf at path. When the leaf's room set
// empties the leaf is deleted, then the recorded ancestors are walked
// upward deleting each branch that went empty, stopping at the first one
// still holding something. A path that no longer resolves is a no-op:
// overlapping prunes of shared leaves are expected.
func (fi *FilterIndex) Prune(path PathKey, roomID RoomID) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	type visit struct {
		parent *indexNode
		key    string
		node   *indexNode
	}
	stack := make([]visit, 0, len(path))
	node := fi.root
	for _, key := range path {
		child, ok := node.children.Load(key)
		if !ok {
			return
		}
		stack = append(stack, visit{parent: node, key: key, node: child})
		node = child
	}

	leaf := node.leaf.Load()
	if leaf == nil {
		log.Warn().
			Strs("path", path).
			Str("room", string(roomID)).
			Msg("Prune expected a leaf but found a branch")
		return
	}
	if _, present := leaf.rooms.LoadAndDelete(roomID); present {
		fi.dropRequirement(roomID)
	}
	if leaf.rooms.Size() > 0 {
		return
	}
	node.leaf.Store(nil)
	fi.leaves.Add(-1)

	for i := len(stack) - 1; i >= 0; i-- {
		v := stack[i]
		if !v.node.empty() {
			return
		}
		v.parent.children.Delete(v.key)
	}
}

func (fi *FilterIndex) dropRequirement(roomID RoomID) {
	fi.required.Compute(roomID, func(n int, loaded bool) (int, bool) {
		if !loaded || n <= 1 {
			return 0, true // delete
		}
		return n - 1, false
	})
}

// MatchRooms returns the ids of every room all of whose leaves accept the
// document. The traversal runs against the live tree; leaves emptied by a
// concurrent unsubscribe contribute stale ids that drop out here or are
// skipped by the caller when resolving names.
func (fi *FilterIndex) MatchRooms(collection string, doc map[string]any) []RoomID {
	sub, ok := fi.root.children.Load(collection)
	if !ok {
		return nil
	}
	matched := make(map[RoomID]int)
	collectMatches(sub, doc, matched)
	if len(matched) == 0 {
		return nil
	}
	ids := make([]RoomID, 0, len(matched))
	for id, hits := range matched {
		required, ok := fi.required.Load(id)
		if ok && hits >= required {
			ids = append(ids, id)
		}
	}
	return ids
}

func collectMatches(node *indexNode, doc map[string]any, matched map[RoomID]int) {
	if leaf := node.leaf.Load(); leaf != nil && leaf.matcher != nil && leaf.matcher(doc) {
		leaf.rooms.Range(func(id RoomID, _ struct{}) bool {
			matched[id]++
			return true
		})
	}
	node.children.Range(func(_ string, child *indexNode) bool {
		collectMatches(child, doc, matched)
		return true
	})
}

// Leaves reports the number of live matcher leaves.
func (fi *FilterIndex) Leaves() int {
	return int(fi.leaves.Load())
}

package rooms

import "context"

// RoomID identifies a room by the content fingerprint of its
// (collection, filter) pair.
type RoomID string

// ConnectionID identifies a client connection.
type ConnectionID string

// PathKey is an ordered key sequence addressing a leaf in the FilterIndex.
// Segments stay discrete so a key containing any character can never
// collide with a joined representation.
type PathKey []string

func (p PathKey) clone() PathKey {
	out := make(PathKey, len(p))
	copy(out, p)
	return out
}

// Matcher evaluates a compiled predicate against a document.
type Matcher func(doc map[string]any) bool

// LeafSpec is one compiled predicate: the index path it occupies and the
// matcher evaluated at that leaf.
type LeafSpec struct {
	Path    PathKey
	Matcher Matcher
}

// CompiledFilter is the compiler's output for one (collection, filter) pair.
type CompiledFilter struct {
	Leaves []LeafSpec
}

// Compiler compiles a raw filter expression into matcher leaves.
// Implementations live outside this package; the registry only stores and
// prunes the structure the compiler produces.
type Compiler interface {
	Compile(ctx context.Context, collection string, filter map[string]any) (*CompiledFilter, error)
}

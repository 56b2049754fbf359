package rooms

import (
	"context"
	"sort"
	"sync/atomic"
)

// stubCompiler compiles each filter field into one equality leaf, the way
// the real compiler shapes its output, and counts invocations so tests
// can assert dedup behavior.
type stubCompiler struct {
	fail  error
	calls atomic.Int32
}

func (c *stubCompiler) Compile(_ context.Context, collection string, filter map[string]any) (*CompiledFilter, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	c.calls.Add(1)

	if len(filter) == 0 {
		return &CompiledFilter{Leaves: []LeafSpec{{
			Path:    PathKey{collection, "$any", "t"},
			Matcher: func(map[string]any) bool { return true },
		}}}, nil
	}

	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	leaves := make([]LeafSpec, 0, len(fields))
	for _, field := range fields {
		field := field
		want := string(CanonicalBytes(filter[field]))
		leaves = append(leaves, LeafSpec{
			Path: PathKey{collection, field, want},
			Matcher: func(doc map[string]any) bool {
				v, ok := doc[field]
				return ok && string(CanonicalBytes(v)) == want
			},
		})
	}
	return &CompiledFilter{Leaves: leaves}, nil
}

func newTestService() (*Service, *stubCompiler) {
	compiler := &stubCompiler{}
	return NewService(compiler), compiler
}

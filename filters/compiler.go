package filters

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/subwave-io/subwave/rooms"
	"github.com/subwave-io/subwave/telemetry"
)

// collectionLeafKey marks the single leaf of an empty filter, which
// subscribes to the whole collection.
const collectionLeafKey = "$any"

// Compiler turns raw filter expressions into matcher leaves for the
// filter index. A filter is a JSON object mapping field paths (dotted for
// nesting) to a required value or an operator object:
//
//	{"status": "open"}                exact match
//	{"price": {"$lt": 100}}           comparison
//	{"name": {"$glob": "user-*"}}     glob pattern
//	{"tag": {"$in": ["a", "b"]}}      membership
//	{}                                whole collection
//
// Each field becomes one leaf; a document matches the filter when every
// leaf predicate accepts it. Compiled results are cached by content
// fingerprint so churned subscriptions skip recompilation.
type Compiler struct {
	cache   *lru.Cache[rooms.RoomID, *rooms.CompiledFilter]
	timeout time.Duration
}

// NewCompiler creates a compiler with a compiled-filter cache of the
// given size. A positive timeout bounds each compilation on top of
// whatever deadline the caller's context already carries.
func NewCompiler(cacheSize int, timeout time.Duration) (*Compiler, error) {
	cache, err := lru.New[rooms.RoomID, *rooms.CompiledFilter](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create filter cache: %w", err)
	}
	return &Compiler{cache: cache, timeout: timeout}, nil
}

// Compile implements rooms.Compiler. Matchers are stateless, so a cached
// result is safe to share between rooms resolving the same fingerprint.
func (c *Compiler) Compile(ctx context.Context, collection string, filter map[string]any) (*rooms.CompiledFilter, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := rooms.Fingerprint(collection, filter)
	if compiled, ok := c.cache.Get(key); ok {
		telemetry.CompileCacheTotal.With("hit").Inc()
		return compiled, nil
	}
	telemetry.CompileCacheTotal.With("miss").Inc()

	start := time.Now()
	compiled, err := compile(collection, filter)
	if err != nil {
		return nil, err
	}
	telemetry.CompileDurationSeconds.Observe(time.Since(start).Seconds())

	c.cache.Add(key, compiled)
	return compiled, nil
}

func compile(collection string, filter map[string]any) (*rooms.CompiledFilter, error) {
	if len(filter) == 0 {
		return &rooms.CompiledFilter{Leaves: []rooms.LeafSpec{{
			Path:    rooms.PathKey{collection, collectionLeafKey, predicateFingerprint(true)},
			Matcher: func(map[string]any) bool { return true },
		}}}, nil
	}

	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	leaves := make([]rooms.LeafSpec, 0, len(fields))
	for _, field := range fields {
		segments := strings.Split(field, ".")
		predicate, err := buildPredicate(filter[field])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}

		path := make(rooms.PathKey, 0, len(segments)+2)
		path = append(path, collection)
		path = append(path, segments...)
		path = append(path, predicateFingerprint(filter[field]))

		leaves = append(leaves, rooms.LeafSpec{
			Path:    path,
			Matcher: fieldMatcher(segments, predicate),
		})
	}
	return &rooms.CompiledFilter{Leaves: leaves}, nil
}

// predicateFingerprint hashes the canonical form of a predicate spec so
// identical predicates from different filters land on the same leaf.
func predicateFingerprint(spec any) string {
	return strconv.FormatUint(xxhash.Sum64(rooms.CanonicalBytes(spec)), 16)
}

func fieldMatcher(segments []string, predicate func(any) bool) rooms.Matcher {
	return func(doc map[string]any) bool {
		value, ok := lookupField(doc, segments)
		if !ok {
			return false
		}
		return predicate(value)
	}
}

func lookupField(doc map[string]any, segments []string) (any, bool) {
	var current any = doc
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func buildPredicate(spec any) (func(any) bool, error) {
	ops, ok := spec.(map[string]any)
	if !ok {
		return equalTo(spec), nil
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("empty operator object")
	}

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	tests := make([]func(any) bool, 0, len(names))
	for _, name := range names {
		test, err := buildOperator(name, ops[name])
		if err != nil {
			return nil, err
		}
		tests = append(tests, test)
	}
	if len(tests) == 1 {
		return tests[0], nil
	}
	return func(v any) bool {
		for _, test := range tests {
			if !test(v) {
				return false
			}
		}
		return true
	}, nil
}

func buildOperator(name string, arg any) (func(any) bool, error) {
	switch name {
	case "$eq":
		return equalTo(arg), nil
	case "$ne":
		eq := equalTo(arg)
		return func(v any) bool { return !eq(v) }, nil
	case "$gt":
		return comparison(arg, func(c int) bool { return c > 0 })
	case "$gte":
		return comparison(arg, func(c int) bool { return c >= 0 })
	case "$lt":
		return comparison(arg, func(c int) bool { return c < 0 })
	case "$lte":
		return comparison(arg, func(c int) bool { return c <= 0 })
	case "$in":
		items, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("$in requires an array")
		}
		tests := make([]func(any) bool, len(items))
		for i, item := range items {
			tests[i] = equalTo(item)
		}
		return func(v any) bool {
			for _, test := range tests {
				if test(v) {
					return true
				}
			}
			return false
		}, nil
	case "$glob":
		pattern, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("$glob requires a string pattern")
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		return func(v any) bool {
			s, ok := v.(string)
			return ok && g.Match(s)
		}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", name)
	}
}

// equalTo compares by canonical form, so 2 and 2.0 compare equal and
// nested structures compare key-order-independently.
func equalTo(want any) func(any) bool {
	wantBytes := rooms.CanonicalBytes(want)
	return func(v any) bool {
		return bytes.Equal(rooms.CanonicalBytes(v), wantBytes)
	}
}

func comparison(arg any, accept func(int) bool) (func(any) bool, error) {
	if _, isNum := toFloat(arg); !isNum {
		if _, isStr := arg.(string); !isStr {
			return nil, fmt.Errorf("comparison requires a number or string")
		}
	}
	return func(v any) bool {
		c, ok := compareValues(v, arg)
		return ok && accept(c)
	}, nil
}

func compareValues(v, arg any) (int, bool) {
	if vf, ok := toFloat(v); ok {
		af, ok := toFloat(arg)
		if !ok {
			return 0, false
		}
		switch {
		case vf < af:
			return -1, true
		case vf > af:
			return 1, true
		}
		return 0, true
	}
	vs, okV := v.(string)
	as, okA := arg.(string)
	if okV && okA {
		return strings.Compare(vs, as), true
	}
	return 0, false
}

// toFloat accepts every integer width the feed decoders produce; msgpack
// in particular yields sized types like int8 for small numbers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

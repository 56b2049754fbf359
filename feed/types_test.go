package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/subwave-io/subwave/filters"
)

func TestNewDecoderJSON(t *testing.T) {
	decode, err := NewDecoder("json")
	require.NoError(t, err)

	ev, err := decode([]byte(`{"collection":"orders","document":{"status":"open","qty":2}}`))
	require.NoError(t, err)
	assert.Equal(t, "orders", ev.Collection)
	assert.Equal(t, "open", ev.Document["status"])

	_, err = decode([]byte(`{broken`))
	assert.Error(t, err)
}

func TestNewDecoderMsgpack(t *testing.T) {
	decode, err := NewDecoder("msgpack")
	require.NoError(t, err)

	payload, err := msgpack.Marshal(ChangeEvent{
		Collection: "orders",
		Document:   map[string]any{"status": "open"},
	})
	require.NoError(t, err)

	ev, err := decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "orders", ev.Collection)
	assert.Equal(t, "open", ev.Document["status"])
}

func TestMsgpackDocumentsMatchNumericFilters(t *testing.T) {
	decode, err := NewDecoder("msgpack")
	require.NoError(t, err)

	payload, err := msgpack.Marshal(ChangeEvent{
		Collection: "orders",
		Document:   map[string]any{"qty": 5, "price": 19.5},
	})
	require.NoError(t, err)

	// msgpack packs small integers into sized types; the decoded document
	// must still satisfy numeric predicates
	ev, err := decode(payload)
	require.NoError(t, err)

	compiler, err := filters.NewCompiler(16, 0)
	require.NoError(t, err)
	for _, filter := range []map[string]any{
		{"qty": map[string]any{"$gt": 3.0}},
		{"qty": 5.0},
		{"price": map[string]any{"$lt": 20.0}},
	} {
		compiled, err := compiler.Compile(context.Background(), "orders", filter)
		require.NoError(t, err)
		for _, leaf := range compiled.Leaves {
			assert.True(t, leaf.Matcher(ev.Document), "filter %v", filter)
		}
	}
}

func TestNewDecoderUnknownEncoding(t *testing.T) {
	_, err := NewDecoder("xml")
	assert.Error(t, err)
}

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/filters"
	"github.com/subwave-io/subwave/rooms"
)

func newTestServer(t *testing.T) (*httptest.Server, *rooms.Service) {
	t.Helper()
	compiler, err := filters.NewCompiler(16, 0)
	require.NoError(t, err)
	service := rooms.NewService(compiler)

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandlers(service))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHandleStatus(t *testing.T) {
	server, service := newTestServer(t)

	_, err := service.AddSubscription(context.Background(), "conn-a", "r1", "orders", map[string]any{"status": "open"})
	require.NoError(t, err)

	body := getJSON(t, server.URL+"/status")
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["rooms"])
	assert.Equal(t, float64(1), data["customers"])
	assert.Equal(t, float64(1), data["index_leaves"])
	assert.Contains(t, data, "uptime_seconds")
}

func TestHandleRooms(t *testing.T) {
	server, service := newTestServer(t)
	ctx := context.Background()

	_, err := service.AddSubscription(ctx, "conn-a", "r1", "orders", map[string]any{"status": "open"})
	require.NoError(t, err)
	_, err = service.AddSubscription(ctx, "conn-b", "mine", "orders", map[string]any{"status": "open"})
	require.NoError(t, err)

	body := getJSON(t, server.URL+"/rooms")
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)

	room := data[0].(map[string]any)
	assert.Equal(t, float64(2), room["subscribers"])
	assert.ElementsMatch(t, []any{"mine", "r1"}, room["aliases"])
}

func TestHandleConnection(t *testing.T) {
	server, service := newTestServer(t)

	id, err := service.AddSubscription(context.Background(), "conn-a", "r1", "orders", map[string]any{"status": "open"})
	require.NoError(t, err)

	body := getJSON(t, server.URL+"/connections/conn-a")
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(id), data["r1"])

	// Unknown connection reports no bindings rather than failing
	body = getJSON(t, server.URL+"/connections/ghost")
	data, ok = body["data"].(map[string]any)
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestHandleDropConnection(t *testing.T) {
	server, service := newTestServer(t)
	ctx := context.Background()

	_, err := service.AddSubscription(ctx, "conn-a", "r1", "orders", map[string]any{"status": "open"})
	require.NoError(t, err)
	_, err = service.AddSubscription(ctx, "conn-a", "r2", "invoices", map[string]any{})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/connections/conn-a", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stats := service.Stats()
	assert.Equal(t, 0, stats.Rooms)
	assert.Equal(t, 0, stats.Customers)
}

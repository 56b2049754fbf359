package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerBindAndUnbind(t *testing.T) {
	reg := NewCustomerRegistry()

	require.NoError(t, reg.Bind("conn-1", "r1", "room-a"))
	require.NoError(t, reg.Bind("conn-1", "r2", "room-a"))
	assert.Equal(t, 1, reg.Count())

	room, err := reg.Unbind("conn-1", "r1")
	require.NoError(t, err)
	assert.Equal(t, RoomID("room-a"), room)

	// Last binding removes the connection entry
	_, err = reg.Unbind("conn-1", "r2")
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Count())
	assert.Empty(t, reg.AllRooms("conn-1"))
}

func TestCustomerBindDuplicateAlias(t *testing.T) {
	reg := NewCustomerRegistry()

	require.NoError(t, reg.Bind("conn-1", "r1", "room-a"))

	// Same alias, any room
	assert.ErrorIs(t, reg.Bind("conn-1", "r1", "room-a"), ErrDuplicateSubscription)
	assert.ErrorIs(t, reg.Bind("conn-1", "r1", "room-b"), ErrDuplicateSubscription)

	// Another connection is free to use the name
	assert.NoError(t, reg.Bind("conn-2", "r1", "room-a"))
}

func TestCustomerUnbindErrors(t *testing.T) {
	reg := NewCustomerRegistry()

	_, err := reg.Unbind("ghost", "r1")
	assert.ErrorIs(t, err, ErrUnknownConnection)

	require.NoError(t, reg.Bind("conn-1", "r1", "room-a"))
	_, err = reg.Unbind("conn-1", "nope")
	assert.ErrorIs(t, err, ErrUnknownAlias)
}

func TestCustomerAllRoomsReturnsCopy(t *testing.T) {
	reg := NewCustomerRegistry()
	require.NoError(t, reg.Bind("conn-1", "r1", "room-a"))

	bindings := reg.AllRooms("conn-1")
	bindings["r2"] = "room-b"

	assert.Len(t, reg.AllRooms("conn-1"), 1)
}

func TestCustomerDropConnection(t *testing.T) {
	reg := NewCustomerRegistry()
	require.NoError(t, reg.Bind("conn-1", "r1", "room-a"))
	require.NoError(t, reg.Bind("conn-1", "r2", "room-b"))

	bindings := reg.DropConnection("conn-1")
	assert.Equal(t, map[string]RoomID{"r1": "room-a", "r2": "room-b"}, bindings)
	assert.Equal(t, 0, reg.Count())

	// Second drop finds nothing
	assert.Nil(t, reg.DropConnection("conn-1"))
}

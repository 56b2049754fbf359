package rooms

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateSubscription is returned when a connection binds an alias
	// it already owns, regardless of which room the alias points to.
	ErrDuplicateSubscription = errors.New("alias already subscribed")

	// ErrUnknownConnection is returned when a connection has no
	// subscriptions at all.
	ErrUnknownConnection = errors.New("connection has no subscriptions")

	// ErrUnknownAlias is returned when the connection exists but the alias
	// is not bound.
	ErrUnknownAlias = errors.New("alias not subscribed")

	// ErrUnknownRoom is returned when a room id does not resolve. Seen
	// during removal it indicates bookkeeping drift between the customer
	// and room registries.
	ErrUnknownRoom = errors.New("unknown room")
)

// CompileError reports a filter the compiler rejected. The compiler's
// reason is surfaced verbatim.
type CompileError struct {
	Collection string
	Reason     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile filter for collection %q: %v", e.Collection, e.Reason)
}

func (e *CompileError) Unwrap() error {
	return e.Reason
}

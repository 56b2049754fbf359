package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/subwave-io/subwave/telemetry"
)

// Service is the public subscription API. It composes the room registry,
// the customer registry and the filter index behind them; transports call
// only this surface.
type Service struct {
	rooms     *RoomRegistry
	customers *CustomerRegistry
	index     *FilterIndex
}

// Stats is the observability snapshot of the registries.
type Stats struct {
	Rooms     int `json:"rooms"`
	Customers int `json:"customers"`
	Leaves    int `json:"index_leaves"`
}

// NewService wires a fresh index and registries around the compiler.
func NewService(compiler Compiler) *Service {
	index := NewFilterIndex()
	return &Service{
		rooms:     NewRoomRegistry(compiler, index),
		customers: NewCustomerRegistry(),
		index:     index,
	}
}

// AddSubscription binds alias for the connection to the room for
// (collection, filter), creating the room on first use. Validation
// failures mutate nothing; a compiler failure aborts with no partial
// room or leaf state retained.
func (s *Service) AddSubscription(ctx context.Context, conn ConnectionID, alias, collection string, filter map[string]any) (RoomID, error) {
	if _, bound := s.customers.AllRooms(conn)[alias]; bound {
		telemetry.SubscribeTotal.With("duplicate").Inc()
		return "", ErrDuplicateSubscription
	}

	for {
		id, created, err := s.rooms.ResolveOrCreate(ctx, collection, filter)
		if err != nil {
			telemetry.SubscribeTotal.With("compile_error").Inc()
			return "", err
		}
		if err := s.rooms.AttachAlias(id, alias); err != nil {
			// Lost a race against the room's teardown; resolve again.
			continue
		}
		if err := s.customers.Bind(conn, alias, id); err != nil {
			// A rejected bind must leave no trace of the attach.
			if _, derr := s.rooms.DetachAlias(id, alias); derr != nil && !errors.Is(derr, ErrUnknownRoom) {
				log.Warn().Err(derr).Str("room", string(id)).Msg("Rollback detach failed")
			}
			telemetry.SubscribeTotal.With("duplicate").Inc()
			return "", err
		}
		if created {
			log.Info().
				Str("room", string(id)).
				Str("collection", collection).
				Msg("First subscription created room")
		}
		telemetry.SubscribeTotal.With("ok").Inc()
		return id, nil
	}
}

// RemoveSubscription unbinds alias for the connection and releases its
// hold on the room. The customer-side unbind always completes; a binding
// that points at a room the registry no longer has is surfaced as
// bookkeeping drift rather than undone.
func (s *Service) RemoveSubscription(conn ConnectionID, alias string) error {
	id, err := s.customers.Unbind(conn, alias)
	if err != nil {
		return err
	}
	if _, err := s.rooms.DetachAlias(id, alias); err != nil {
		log.Error().
			Str("room", string(id)).
			Str("alias", alias).
			Str("connection", string(conn)).
			Msg("Customer binding referenced a room the registry no longer has")
		telemetry.UnsubscribeTotal.With("drift").Inc()
		return fmt.Errorf("release room %s: %w", id, err)
	}
	telemetry.UnsubscribeTotal.With("ok").Inc()
	return nil
}

// RemoveAllSubscriptions drops every binding the connection holds, once
// per alias. Rooms already gone are reported, never fatal: disconnect
// cleanup sweeps the full set regardless of per-room failures.
func (s *Service) RemoveAllSubscriptions(conn ConnectionID) error {
	bindings := s.customers.DropConnection(conn)
	var errs []error
	for alias, id := range bindings {
		if _, err := s.rooms.DetachAlias(id, alias); err != nil {
			errs = append(errs, fmt.Errorf("room %s alias %q: %w", id, alias, err))
		}
	}
	if len(bindings) > 0 {
		log.Debug().
			Str("connection", string(conn)).
			Int("bindings", len(bindings)).
			Int("failures", len(errs)).
			Msg("Dropped connection subscriptions")
	}
	return errors.Join(errs...)
}

// ResolveRoomNames turns matched room ids into the client-facing names
// bound to them. Ids that no longer resolve are skipped.
func (s *Service) ResolveRoomNames(ids []RoomID) []string {
	return s.rooms.AliasesFor(ids)
}

// MatchRooms returns the rooms whose filters accept the document.
func (s *Service) MatchRooms(collection string, doc map[string]any) []RoomID {
	start := time.Now()
	ids := s.index.MatchRooms(collection, doc)
	telemetry.MatchDurationSeconds.Observe(time.Since(start).Seconds())
	return ids
}

// Stats reports room, customer and index-leaf counts.
func (s *Service) Stats() Stats {
	return Stats{
		Rooms:     s.RoomCount(),
		Customers: s.CustomerCount(),
		Leaves:    s.LeafCount(),
	}
}

// RoomCount reports the number of live rooms.
func (s *Service) RoomCount() int { return s.rooms.Count() }

// CustomerCount reports connections with at least one binding.
func (s *Service) CustomerCount() int { return s.customers.Count() }

// LeafCount reports live matcher leaves in the filter index.
func (s *Service) LeafCount() int { return s.index.Leaves() }

// Rooms returns a snapshot of every live room for status reporting.
func (s *Service) Rooms() []RoomInfo {
	return s.rooms.Snapshot()
}

// Connection returns the alias -> room bindings of one connection.
func (s *Service) Connection(conn ConnectionID) map[string]RoomID {
	return s.customers.AllRooms(conn)
}

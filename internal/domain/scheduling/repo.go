package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medagenda/medagenda/internal/domain/directory"
)

// SlotRepository persists slots and enforces the storage-level invariants:
// the (provider_id, scheduled_at) uniqueness constraint and the guarded
// single-statement state transitions. Guarded updates apply only when the
// slot is still in the expected state, so concurrent writers resolve
// deterministically: exactly one wins, the rest observe the conflict.
type SlotRepository interface {
	Create(ctx context.Context, slot *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByProvider returns one provider's slots with scheduled_at in
	// [from, to], ascending, regardless of occupancy.
	ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error)

	// ListRange returns all providers' slots in [from, to], ascending.
	ListRange(ctx context.Context, from, to time.Time) ([]Slot, error)

	// ListByClient returns the slots currently booked by a client, ascending.
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]Slot, error)

	// OpenSlotsByProviders returns every open slot belonging to any of the
	// given providers, ascending by scheduled_at.
	OpenSlotsByProviders(ctx context.Context, providerIDs []uuid.UUID) ([]Slot, error)

	// Book assigns the slot to a client. Only applies while the slot is
	// open; returns ErrAlreadyBooked otherwise, ErrSlotNotFound if absent.
	Book(ctx context.Context, id, clientID uuid.UUID) (*Slot, error)

	// Release reopens a booked slot and clears its client. Returns
	// ErrAlreadyOpen if the slot is already open.
	Release(ctx context.Context, id uuid.UUID) (*Slot, error)

	// MarkAttended sets the attended flag. Returns ErrAlreadyAttended on a
	// repeat call; the flag never reverts.
	MarkAttended(ctx context.Context, id uuid.UUID) (*Slot, error)

	// MarkPaid sets the paid flag. Returns ErrAlreadyPaid on a repeat call.
	MarkPaid(ctx context.Context, id uuid.UUID) (*Slot, error)
}

// ProviderDirectory is the slice of the directory the engine needs: existence
// checks for validation and filtered provider sets for availability search.
type ProviderDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	FindBySpecialty(ctx context.Context, specialty, affiliation, location string) ([]directory.Provider, error)
	FindByNamePrefix(ctx context.Context, prefix, affiliation string) ([]directory.Provider, error)
}

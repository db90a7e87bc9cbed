package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medagenda/medagenda/internal/domain/directory"
	"github.com/medagenda/medagenda/internal/platform/auth"
	"github.com/medagenda/medagenda/internal/platform/cache"
)

// AvailabilityCache is the slice of the cache the engine uses. *cache.Cache
// satisfies it, including as a nil pointer when caching is disabled.
type AvailabilityCache interface {
	Get(ctx context.Context, key string, v interface{}) bool
	Set(ctx context.Context, key string, v interface{})
	Invalidate(ctx context.Context)
}

// Service is the agenda engine. Every operation authorizes the caller
// against the permission table before touching the store, so a caller who
// lacks the role never learns whether the target exists.
type Service struct {
	slots     SlotRepository
	providers ProviderDirectory
	cache     AvailabilityCache
}

func NewService(slots SlotRepository, providers ProviderDirectory, c AvailabilityCache) *Service {
	if c == nil {
		c = (*cache.Cache)(nil)
	}
	return &Service{slots: slots, providers: providers, cache: c}
}

// -- Availability queries --

// ListDay returns all of one provider's slots on the given calendar day,
// booked or not, ascending by instant.
func (s *Service) ListDay(ctx context.Context, caller auth.Caller, providerID uuid.UUID, date string) ([]Slot, error) {
	if err := auth.Authorize(caller, auth.OpListDay); err != nil {
		return nil, err
	}
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	if err := s.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}
	from, to := DayBounds(day)
	return s.slots.ListByProvider(ctx, providerID, from, to)
}

// ListToday returns every provider's slots for the current calendar day.
func (s *Service) ListToday(ctx context.Context, caller auth.Caller) ([]Slot, error) {
	if err := auth.Authorize(caller, auth.OpListToday); err != nil {
		return nil, err
	}
	from, to := DayBounds(time.Now())
	return s.slots.ListRange(ctx, from, to)
}

// ListRange returns one provider's slots between two calendar dates,
// bounds inclusive. An empty end date makes it equivalent to ListDay(start).
func (s *Service) ListRange(ctx context.Context, caller auth.Caller, providerID uuid.UUID, start, end string) ([]Slot, error) {
	if err := auth.Authorize(caller, auth.OpListRange); err != nil {
		return nil, err
	}
	startDay, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	endDay := startDay
	if end != "" {
		if endDay, err = ParseDate(end); err != nil {
			return nil, err
		}
	}
	if startDay.After(endDay) {
		return nil, ErrInvalidRange
	}
	if err := s.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}
	from, to := RangeBounds(startDay, endDay)
	return s.slots.ListByProvider(ctx, providerID, from, to)
}

// ListByClient returns the slots a client currently holds. Patients may
// only list their own.
func (s *Service) ListByClient(ctx context.Context, caller auth.Caller, clientID uuid.UUID) ([]Slot, error) {
	if err := auth.Authorize(caller, auth.OpListByClient); err != nil {
		return nil, err
	}
	if !caller.HasRole(auth.RoleAdmin) && caller.ID != clientID.String() {
		return nil, auth.ErrForbidden
	}
	return s.slots.ListByClient(ctx, clientID)
}

// SearchBySpecialty returns, for each active provider matching the
// filters, that provider's earliest open slot. Providers without an open
// slot are absent from the result. All three filters are required.
func (s *Service) SearchBySpecialty(ctx context.Context, caller auth.Caller, specialty, affiliation, location string) ([]ProviderAvailability, error) {
	if err := auth.Authorize(caller, auth.OpSearchSpecialty); err != nil {
		return nil, err
	}
	if specialty == "" {
		return nil, fmt.Errorf("%w: specialty", ErrMissingField)
	}
	if affiliation == "" {
		return nil, fmt.Errorf("%w: affiliation", ErrMissingField)
	}
	if location == "" {
		return nil, fmt.Errorf("%w: location", ErrMissingField)
	}

	key := fmt.Sprintf("specialty:%s:%s:%s", specialty, affiliation, location)
	var cached []ProviderAvailability
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	providers, err := s.providers.FindBySpecialty(ctx, specialty, affiliation, location)
	if err != nil {
		return nil, err
	}
	result, err := s.earliestOpen(ctx, providers)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, result)
	return result, nil
}

// SearchByName is the name-prefix variant of the earliest-open search.
// Both the prefix and the affiliation are required.
func (s *Service) SearchByName(ctx context.Context, caller auth.Caller, namePrefix, affiliation string) ([]ProviderAvailability, error) {
	if err := auth.Authorize(caller, auth.OpSearchName); err != nil {
		return nil, err
	}
	if namePrefix == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	if affiliation == "" {
		return nil, fmt.Errorf("%w: affiliation", ErrMissingField)
	}

	key := fmt.Sprintf("name:%s:%s", namePrefix, affiliation)
	var cached []ProviderAvailability
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	providers, err := s.providers.FindByNamePrefix(ctx, namePrefix, affiliation)
	if err != nil {
		return nil, err
	}
	result, err := s.earliestOpen(ctx, providers)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, result)
	return result, nil
}

// -- Slot lifecycle --

// CreateSlot opens a new slot for a provider at the given RFC 3339 instant.
func (s *Service) CreateSlot(ctx context.Context, caller auth.Caller, providerID uuid.UUID, instant string, value *float64) (*Slot, error) {
	if err := auth.Authorize(caller, auth.OpCreateSlot); err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339, instant)
	if err != nil {
		return nil, ErrInvalidInstant
	}
	if err := s.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}

	slot := &Slot{ProviderID: providerID, ScheduledAt: at, Value: value}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return slot, nil
}

// DeleteSlot removes a slot permanently, whatever its state.
func (s *Service) DeleteSlot(ctx context.Context, caller auth.Caller, id uuid.UUID) error {
	if err := auth.Authorize(caller, auth.OpDeleteSlot); err != nil {
		return err
	}
	if err := s.slots.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx)
	return nil
}

// Book assigns an open slot to the caller. Losing a race against another
// booker surfaces as ErrAlreadyBooked.
func (s *Service) Book(ctx context.Context, caller auth.Caller, slotID uuid.UUID) (*Slot, error) {
	if err := auth.Authorize(caller, auth.OpBookSlot); err != nil {
		return nil, err
	}
	clientID, err := uuid.Parse(caller.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: caller id", ErrMissingField)
	}
	slot, err := s.slots.Book(ctx, slotID, clientID)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return slot, nil
}

// Cancel reopens a booked slot. Patients may only cancel their own booking;
// staff may cancel any.
func (s *Service) Cancel(ctx context.Context, caller auth.Caller, slotID uuid.UUID) (*Slot, error) {
	if err := auth.Authorize(caller, auth.OpCancelSlot); err != nil {
		return nil, err
	}
	if !caller.HasRole(auth.RoleAdmin) && !caller.HasRole(auth.RoleSecretary) {
		current, err := s.slots.GetByID(ctx, slotID)
		if err != nil {
			return nil, err
		}
		if current.ClientID != nil && current.ClientID.String() != caller.ID {
			return nil, auth.ErrForbidden
		}
	}
	slot, err := s.slots.Release(ctx, slotID)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return slot, nil
}

// MarkAttended flags a slot's appointment as fulfilled. Re-marking is a
// conflict, never a silent no-op.
func (s *Service) MarkAttended(ctx context.Context, caller auth.Caller, slotID uuid.UUID) (*Slot, error) {
	if err := auth.Authorize(caller, auth.OpMarkAttended); err != nil {
		return nil, err
	}
	slot, err := s.slots.MarkAttended(ctx, slotID)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return slot, nil
}

// MarkPaid flags a slot as reconciled. Independent of attendance.
func (s *Service) MarkPaid(ctx context.Context, caller auth.Caller, slotID uuid.UUID) (*Slot, error) {
	if err := auth.Authorize(caller, auth.OpMarkPaid); err != nil {
		return nil, err
	}
	slot, err := s.slots.MarkPaid(ctx, slotID)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return slot, nil
}

// -- helpers --

func (s *Service) requireProvider(ctx context.Context, id uuid.UUID) error {
	ok, err := s.providers.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProviderNotFound
	}
	return nil
}

func (s *Service) earliestOpen(ctx context.Context, providers []directory.Provider) ([]ProviderAvailability, error) {
	if len(providers) == 0 {
		return []ProviderAvailability{}, nil
	}
	open, err := s.slots.OpenSlotsByProviders(ctx, providerIDs(providers))
	if err != nil {
		return nil, err
	}
	return joinProviders(providers, earliestPerProvider(groupByProvider(open))), nil
}

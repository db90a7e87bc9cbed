package scheduling

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medagenda/medagenda/internal/domain/directory"
	"github.com/medagenda/medagenda/internal/platform/auth"
)

// -- in-memory fakes --

type memSlotRepo struct {
	slots map[uuid.UUID]*Slot
}

func newMemSlotRepo() *memSlotRepo {
	return &memSlotRepo{slots: make(map[uuid.UUID]*Slot)}
}

func (r *memSlotRepo) Create(_ context.Context, s *Slot) error {
	for _, existing := range r.slots {
		if existing.ProviderID == s.ProviderID && existing.ScheduledAt.Equal(s.ScheduledAt) {
			return ErrDuplicateSlot
		}
	}
	s.ID = uuid.New()
	s.Open = true
	s.ClientID = nil
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	r.slots[s.ID] = &cp
	return nil
}

func (r *memSlotRepo) GetByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSlotRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(r.slots, id)
	return nil
}

func (r *memSlotRepo) ListByProvider(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	out := []Slot{}
	for _, s := range r.slots {
		if s.ProviderID == providerID && !s.ScheduledAt.Before(from) && !s.ScheduledAt.After(to) {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *memSlotRepo) ListRange(_ context.Context, from, to time.Time) ([]Slot, error) {
	out := []Slot{}
	for _, s := range r.slots {
		if !s.ScheduledAt.Before(from) && !s.ScheduledAt.After(to) {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *memSlotRepo) ListByClient(_ context.Context, clientID uuid.UUID) ([]Slot, error) {
	out := []Slot{}
	for _, s := range r.slots {
		if s.ClientID != nil && *s.ClientID == clientID {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *memSlotRepo) OpenSlotsByProviders(_ context.Context, providerIDs []uuid.UUID) ([]Slot, error) {
	members := make(map[uuid.UUID]bool, len(providerIDs))
	for _, id := range providerIDs {
		members[id] = true
	}
	out := []Slot{}
	for _, s := range r.slots {
		if s.Open && members[s.ProviderID] {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *memSlotRepo) Book(_ context.Context, id, clientID uuid.UUID) (*Slot, error) {
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if !s.Open {
		return nil, ErrAlreadyBooked
	}
	s.ClientID = &clientID
	s.Open = false
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *memSlotRepo) Release(_ context.Context, id uuid.UUID) (*Slot, error) {
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Open {
		return nil, ErrAlreadyOpen
	}
	s.ClientID = nil
	s.Open = true
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *memSlotRepo) MarkAttended(_ context.Context, id uuid.UUID) (*Slot, error) {
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Attended {
		return nil, ErrAlreadyAttended
	}
	s.Attended = true
	cp := *s
	return &cp, nil
}

func (r *memSlotRepo) MarkPaid(_ context.Context, id uuid.UUID) (*Slot, error) {
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Paid {
		return nil, ErrAlreadyPaid
	}
	s.Paid = true
	cp := *s
	return &cp, nil
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].ScheduledAt.Before(slots[j].ScheduledAt)
	})
}

type memDirectory struct {
	providers []directory.Provider
}

func (d *memDirectory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	for _, p := range d.providers {
		if p.ID == id && p.Active {
			return true, nil
		}
	}
	return false, nil
}

func (d *memDirectory) FindBySpecialty(_ context.Context, specialty, affiliation, location string) ([]directory.Provider, error) {
	out := []directory.Provider{}
	for _, p := range d.providers {
		if p.Active && p.Specialty == specialty && p.Affiliation == affiliation && p.Location == location {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *memDirectory) FindByNamePrefix(_ context.Context, prefix, affiliation string) ([]directory.Provider, error) {
	out := []directory.Provider{}
	for _, p := range d.providers {
		if p.Active && p.Affiliation == affiliation &&
			strings.HasPrefix(strings.ToLower(p.Name), strings.ToLower(prefix)) {
			out = append(out, p)
		}
	}
	return out, nil
}

type recordingCache struct {
	invalidations int
}

func (c *recordingCache) Get(context.Context, string, interface{}) bool { return false }
func (c *recordingCache) Set(context.Context, string, interface{})     {}
func (c *recordingCache) Invalidate(context.Context)                   { c.invalidations++ }

// -- fixtures --

var (
	secretary = auth.Caller{ID: uuid.NewString(), Roles: []string{auth.RoleSecretary}}
	admin     = auth.Caller{ID: uuid.NewString(), Roles: []string{auth.RoleAdmin}}
)

func patientCaller() auth.Caller {
	return auth.Caller{ID: uuid.NewString(), Roles: []string{auth.RolePatient}}
}

func newTestService(providers ...directory.Provider) (*Service, *memSlotRepo) {
	repo := newMemSlotRepo()
	return NewService(repo, &memDirectory{providers: providers}, nil), repo
}

func activeProvider(specialty string) directory.Provider {
	return directory.Provider{
		ID:          uuid.New(),
		Name:        "Dr Test",
		Specialty:   specialty,
		Affiliation: "fonasa",
		Location:    "santiago",
		Active:      true,
	}
}

func mustCreate(t *testing.T, svc *Service, providerID uuid.UUID, instant string) *Slot {
	t.Helper()
	slot, err := svc.CreateSlot(context.Background(), secretary, providerID, instant, nil)
	if err != nil {
		t.Fatalf("CreateSlot(%s) error = %v", instant, err)
	}
	return slot
}

// -- lifecycle --

func TestCreateSlot(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)

	slot := mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")

	if !slot.Open {
		t.Error("new slot should be open")
	}
	if slot.ClientID != nil {
		t.Error("new slot should have no client")
	}
}

func TestCreateSlot_Duplicate(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)

	mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")
	_, err := svc.CreateSlot(context.Background(), secretary, prov.ID, "2026-03-16T09:00:00Z", nil)
	if !errors.Is(err, ErrDuplicateSlot) {
		t.Errorf("second create error = %v, want ErrDuplicateSlot", err)
	}
}

func TestCreateSlot_InvalidInstant(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)

	_, err := svc.CreateSlot(context.Background(), secretary, prov.ID, "tomorrow at nine", nil)
	if !errors.Is(err, ErrInvalidInstant) {
		t.Errorf("error = %v, want ErrInvalidInstant", err)
	}
}

func TestCreateSlot_UnknownProvider(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateSlot(context.Background(), secretary, uuid.New(), "2026-03-16T09:00:00Z", nil)
	if !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("error = %v, want ErrProviderNotFound", err)
	}
}

func TestCreateSlot_PatientForbidden(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)

	_, err := svc.CreateSlot(context.Background(), patientCaller(), prov.ID, "2026-03-16T09:00:00Z", nil)
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}
}

func TestBookThenCancel_RestoresOpenState(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, repo := newTestService(prov)
	slot := mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")
	patient := patientCaller()

	booked, err := svc.Book(context.Background(), patient, slot.ID)
	if err != nil {
		t.Fatalf("Book() error = %v", err)
	}
	if booked.Open || booked.ClientID == nil || booked.ClientID.String() != patient.ID {
		t.Errorf("after book: open=%v client=%v", booked.Open, booked.ClientID)
	}

	released, err := svc.Cancel(context.Background(), patient, slot.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !released.Open || released.ClientID != nil {
		t.Errorf("after cancel: open=%v client=%v", released.Open, released.ClientID)
	}

	// The occupancy invariant must hold in the store as well.
	stored, _ := repo.GetByID(context.Background(), slot.ID)
	if (stored.ClientID != nil) == stored.Open {
		t.Error("occupancy invariant violated: client set iff not open")
	}
}

func TestBook_Twice(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)
	slot := mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")

	if _, err := svc.Book(context.Background(), patientCaller(), slot.ID); err != nil {
		t.Fatalf("first Book() error = %v", err)
	}
	_, err := svc.Book(context.Background(), patientCaller(), slot.ID)
	if !errors.Is(err, ErrAlreadyBooked) {
		t.Errorf("second Book() error = %v, want ErrAlreadyBooked", err)
	}
}

func TestBook_SlotNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Book(context.Background(), patientCaller(), uuid.New())
	if !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("error = %v, want ErrSlotNotFound", err)
	}
}

func TestCancel_AlreadyOpen(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)
	slot := mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")

	_, err := svc.Cancel(context.Background(), secretary, slot.ID)
	if !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("error = %v, want ErrAlreadyOpen", err)
	}
}

func TestCancel_OtherPatientForbidden(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)
	slot := mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")

	if _, err := svc.Book(context.Background(), patientCaller(), slot.ID); err != nil {
		t.Fatalf("Book() error = %v", err)
	}
	_, err := svc.Cancel(context.Background(), patientCaller(), slot.ID)
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}

	// Staff can cancel anyone's booking.
	if _, err := svc.Cancel(context.Background(), secretary, slot.ID); err != nil {
		t.Errorf("secretary Cancel() error = %v", err)
	}
}

func TestMarkAttended_Twice(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)
	slot := mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")

	marked, err := svc.MarkAttended(context.Background(), secretary, slot.ID)
	if err != nil {
		t.Fatalf("MarkAttended() error = %v", err)
	}
	if !marked.Attended {
		t.Error("flag not set")
	}
	_, err = svc.MarkAttended(context.Background(), secretary, slot.ID)
	if !errors.Is(err, ErrAlreadyAttended) {
		t.Errorf("second MarkAttended() error = %v, want ErrAlreadyAttended", err)
	}
}

func TestMarkPaid_Twice(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)
	slot := mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")

	if _, err := svc.MarkPaid(context.Background(), secretary, slot.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	_, err := svc.MarkPaid(context.Background(), secretary, slot.ID)
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("second MarkPaid() error = %v, want ErrAlreadyPaid", err)
	}
}

func TestDeleteSlot(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)
	slot := mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")

	// Deletion applies regardless of occupancy.
	if _, err := svc.Book(context.Background(), patientCaller(), slot.ID); err != nil {
		t.Fatalf("Book() error = %v", err)
	}
	if err := svc.DeleteSlot(context.Background(), secretary, slot.ID); err != nil {
		t.Fatalf("DeleteSlot() error = %v", err)
	}
	if err := svc.DeleteSlot(context.Background(), secretary, slot.ID); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("second DeleteSlot() error = %v, want ErrSlotNotFound", err)
	}
}

// -- availability queries --

func TestListDay(t *testing.T) {
	prov := activeProvider("dermatology")
	other := activeProvider("cardiology")
	svc, _ := newTestService(prov, other)

	mustCreate(t, svc, prov.ID, "2026-03-16T11:00:00Z")
	mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")
	mustCreate(t, svc, prov.ID, "2026-03-17T09:00:00Z")
	mustCreate(t, svc, other.ID, "2026-03-16T10:00:00Z")

	day := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC).In(time.Local).Format(DateLayout)
	slots, err := svc.ListDay(context.Background(), secretary, prov.ID, day)
	if err != nil {
		t.Fatalf("ListDay() error = %v", err)
	}

	for i, s := range slots {
		if s.ProviderID != prov.ID {
			t.Errorf("slot %d belongs to another provider", i)
		}
		if i > 0 && slots[i-1].ScheduledAt.After(s.ScheduledAt) {
			t.Error("slots out of order")
		}
	}
}

func TestListDay_InvalidDate(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)

	_, err := svc.ListDay(context.Background(), secretary, prov.ID, "16/03/2026")
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("error = %v, want ErrInvalidDate", err)
	}
}

func TestListDay_UnknownProvider(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ListDay(context.Background(), secretary, uuid.New(), "2026-03-16")
	if !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("error = %v, want ErrProviderNotFound", err)
	}
}

func TestListDay_EmptyIsNotAnError(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)

	slots, err := svc.ListDay(context.Background(), secretary, prov.ID, "2026-03-16")
	if err != nil {
		t.Fatalf("ListDay() error = %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Errorf("expected empty list, got %v", slots)
	}
}

func TestListRange_EndOmittedEqualsListDay(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)
	mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")
	mustCreate(t, svc, prov.ID, "2026-03-17T09:00:00Z")

	day := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC).In(time.Local).Format(DateLayout)

	byDay, err := svc.ListDay(context.Background(), secretary, prov.ID, day)
	if err != nil {
		t.Fatalf("ListDay() error = %v", err)
	}
	byRange, err := svc.ListRange(context.Background(), secretary, prov.ID, day, "")
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}

	if len(byDay) != len(byRange) {
		t.Fatalf("day returned %d slots, open-ended range returned %d", len(byDay), len(byRange))
	}
	for i := range byDay {
		if byDay[i].ID != byRange[i].ID {
			t.Errorf("slot %d differs between day and range lookup", i)
		}
	}
}

func TestListRange_StartAfterEnd(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)

	_, err := svc.ListRange(context.Background(), secretary, prov.ID, "2026-03-18", "2026-03-16")
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("error = %v, want ErrInvalidRange", err)
	}
}

func TestListByClient_OwnBookingsOnly(t *testing.T) {
	prov := activeProvider("dermatology")
	svc, _ := newTestService(prov)
	slot := mustCreate(t, svc, prov.ID, "2026-03-16T09:00:00Z")
	patient := patientCaller()

	if _, err := svc.Book(context.Background(), patient, slot.ID); err != nil {
		t.Fatalf("Book() error = %v", err)
	}

	own, err := svc.ListByClient(context.Background(), patient, uuid.MustParse(patient.ID))
	if err != nil {
		t.Fatalf("ListByClient() error = %v", err)
	}
	if len(own) != 1 || own[0].ID != slot.ID {
		t.Errorf("expected the booked slot, got %v", own)
	}

	_, err = svc.ListByClient(context.Background(), patientCaller(), uuid.MustParse(patient.ID))
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("cross-patient listing error = %v, want ErrForbidden", err)
	}

	// Admin may inspect any client's bookings.
	if _, err := svc.ListByClient(context.Background(), admin, uuid.MustParse(patient.ID)); err != nil {
		t.Errorf("admin ListByClient() error = %v", err)
	}
}

func TestSearchBySpecialty(t *testing.T) {
	provA := activeProvider("dermatology")
	provA.Name = "Ana Soto"
	provB := activeProvider("dermatology")
	provB.Name = "Bruno Vidal"
	svc, _ := newTestService(provA, provB)

	// A has two open slots, B has none open: exactly one row, A's earliest.
	mustCreate(t, svc, provA.ID, "2026-03-16T11:00:00Z")
	earliest := mustCreate(t, svc, provA.ID, "2026-03-16T09:00:00Z")
	slotB := mustCreate(t, svc, provB.ID, "2026-03-16T09:00:00Z")
	if _, err := svc.Book(context.Background(), patientCaller(), slotB.ID); err != nil {
		t.Fatalf("Book() error = %v", err)
	}

	result, err := svc.SearchBySpecialty(context.Background(), patientCaller(), "dermatology", "fonasa", "santiago")
	if err != nil {
		t.Fatalf("SearchBySpecialty() error = %v", err)
	}

	if len(result) != 1 {
		t.Fatalf("expected 1 row, got %d", len(result))
	}
	if result[0].Provider.ID != provA.ID {
		t.Errorf("expected provider A, got %s", result[0].Provider.Name)
	}
	if result[0].NextSlot.ID != earliest.ID {
		t.Errorf("expected the 09:00 slot, got %v", result[0].NextSlot.ScheduledAt)
	}
}

func TestSearchBySpecialty_MissingFilter(t *testing.T) {
	svc, _ := newTestService()

	// Specialty, affiliation and location are all mandatory.
	tests := []struct {
		name                             string
		specialty, affiliation, location string
	}{
		{"no specialty", "", "fonasa", "santiago"},
		{"no affiliation", "dermatology", "", "santiago"},
		{"no location", "dermatology", "fonasa", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SearchBySpecialty(context.Background(), patientCaller(), tt.specialty, tt.affiliation, tt.location)
			if !errors.Is(err, ErrMissingField) {
				t.Errorf("error = %v, want ErrMissingField", err)
			}
		})
	}
}

func TestSearchBySpecialty_NoMatchIsEmpty(t *testing.T) {
	svc, _ := newTestService(activeProvider("dermatology"))

	result, err := svc.SearchBySpecialty(context.Background(), patientCaller(), "cardiology", "fonasa", "santiago")
	if err != nil {
		t.Fatalf("SearchBySpecialty() error = %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %v", result)
	}
}

func TestSearchByName(t *testing.T) {
	provA := activeProvider("dermatology")
	provA.Name = "Ana Soto"
	svc, _ := newTestService(provA)
	slot := mustCreate(t, svc, provA.ID, "2026-03-16T09:00:00Z")

	result, err := svc.SearchByName(context.Background(), patientCaller(), "ana", "fonasa")
	if err != nil {
		t.Fatalf("SearchByName() error = %v", err)
	}
	if len(result) != 1 || result[0].NextSlot.ID != slot.ID {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestSearchByName_MissingAffiliation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.SearchByName(context.Background(), patientCaller(), "ana", "")
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("error = %v, want ErrMissingField", err)
	}
}

func TestSlotWrites_InvalidateAvailability(t *testing.T) {
	prov := activeProvider("dermatology")
	rec := &recordingCache{}
	svc := NewService(newMemSlotRepo(), &memDirectory{providers: []directory.Provider{prov}}, rec)
	ctx := context.Background()
	patient := patientCaller()

	slot, err := svc.CreateSlot(ctx, secretary, prov.ID, "2026-03-16T09:00:00Z", nil)
	if err != nil {
		t.Fatalf("CreateSlot() error = %v", err)
	}
	if _, err := svc.Book(ctx, patient, slot.ID); err != nil {
		t.Fatalf("Book() error = %v", err)
	}
	if _, err := svc.MarkAttended(ctx, secretary, slot.ID); err != nil {
		t.Fatalf("MarkAttended() error = %v", err)
	}
	if _, err := svc.MarkPaid(ctx, secretary, slot.ID); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if _, err := svc.Cancel(ctx, patient, slot.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := svc.DeleteSlot(ctx, secretary, slot.ID); err != nil {
		t.Fatalf("DeleteSlot() error = %v", err)
	}

	if rec.invalidations != 6 {
		t.Errorf("expected every write to invalidate, got %d invalidations for 6 writes", rec.invalidations)
	}

	// A failed write leaves the cache alone.
	if _, err := svc.Book(ctx, patient, slot.ID); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("Book() after delete error = %v, want ErrSlotNotFound", err)
	}
	if rec.invalidations != 6 {
		t.Errorf("failed write should not invalidate, got %d", rec.invalidations)
	}
}

func TestSearchByName_SecretaryForbidden(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.SearchByName(context.Background(), secretary, "ana", "fonasa")
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}
}

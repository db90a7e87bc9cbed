package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type slotRepoPG struct {
	pool *pgxpool.Pool
}

func NewSlotRepo(pool *pgxpool.Pool) SlotRepository {
	return &slotRepoPG{pool: pool}
}

const slotCols = `id, provider_id, client_id, scheduled_at, is_open, was_attended, is_paid, value, created_at, updated_at`

func (r *slotRepoPG) Create(ctx context.Context, s *Slot) error {
	s.ID = uuid.New()
	s.Open = true
	s.ClientID = nil

	err := r.pool.QueryRow(ctx, `
		INSERT INTO slot (id, provider_id, scheduled_at, is_open, value)
		VALUES ($1, $2, $3, true, $4)
		RETURNING created_at, updated_at`,
		s.ID, s.ProviderID, s.ScheduledAt, s.Value,
	).Scan(&s.CreatedAt, &s.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateSlot
	}
	return err
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(r.pool.QueryRow(ctx, `SELECT `+slotCols+` FROM slot WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	return s, err
}

func (r *slotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slot WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *slotRepoPG) ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotCols+` FROM slot
		WHERE provider_id = $1 AND scheduled_at BETWEEN $2 AND $3
		ORDER BY scheduled_at ASC`,
		providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func (r *slotRepoPG) ListRange(ctx context.Context, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotCols+` FROM slot
		WHERE scheduled_at BETWEEN $1 AND $2
		ORDER BY scheduled_at ASC`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func (r *slotRepoPG) ListByClient(ctx context.Context, clientID uuid.UUID) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotCols+` FROM slot
		WHERE client_id = $1
		ORDER BY scheduled_at ASC`,
		clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func (r *slotRepoPG) OpenSlotsByProviders(ctx context.Context, providerIDs []uuid.UUID) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotCols+` FROM slot
		WHERE is_open AND provider_id = ANY($1)
		ORDER BY scheduled_at ASC`,
		providerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

// Book, Release, MarkAttended and MarkPaid are guarded single-statement
// updates: the WHERE clause re-checks current state, so the transition only
// applies if the slot is still in the expected state. Under concurrent
// writers exactly one statement matches; the losers see zero rows and the
// repository reports why by re-reading the slot.

func (r *slotRepoPG) Book(ctx context.Context, id, clientID uuid.UUID) (*Slot, error) {
	s, err := scanSlot(r.pool.QueryRow(ctx, `
		UPDATE slot SET client_id = $2, is_open = false, updated_at = now()
		WHERE id = $1 AND is_open
		RETURNING `+slotCols,
		id, clientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.explainMiss(ctx, id, ErrAlreadyBooked)
	}
	return s, err
}

func (r *slotRepoPG) Release(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(r.pool.QueryRow(ctx, `
		UPDATE slot SET client_id = NULL, is_open = true, updated_at = now()
		WHERE id = $1 AND NOT is_open
		RETURNING `+slotCols,
		id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.explainMiss(ctx, id, ErrAlreadyOpen)
	}
	return s, err
}

func (r *slotRepoPG) MarkAttended(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(r.pool.QueryRow(ctx, `
		UPDATE slot SET was_attended = true, updated_at = now()
		WHERE id = $1 AND NOT was_attended
		RETURNING `+slotCols,
		id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.explainMiss(ctx, id, ErrAlreadyAttended)
	}
	return s, err
}

func (r *slotRepoPG) MarkPaid(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(r.pool.QueryRow(ctx, `
		UPDATE slot SET is_paid = true, updated_at = now()
		WHERE id = $1 AND NOT is_paid
		RETURNING `+slotCols,
		id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.explainMiss(ctx, id, ErrAlreadyPaid)
	}
	return s, err
}

// explainMiss distinguishes "slot gone" from "guard failed" after a guarded
// update matched zero rows.
func (r *slotRepoPG) explainMiss(ctx context.Context, id uuid.UUID, conflict error) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM slot WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrSlotNotFound
	}
	return conflict
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.ProviderID, &s.ClientID, &s.ScheduledAt,
		&s.Open, &s.Attended, &s.Paid, &s.Value, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	slots := []Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

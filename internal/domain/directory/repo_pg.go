package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const providerCols = `id, name, rut, email, specialty, affiliation, location, active, created_at, updated_at`

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+providerCols+` FROM provider WHERE id = $1`, id)
	p, err := scanProvider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM provider WHERE id = $1 AND active)`, id).Scan(&exists)
	return exists, err
}

func (r *repoPG) FindBySpecialty(ctx context.Context, specialty, affiliation, location string) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerCols+` FROM provider
		WHERE active AND specialty = $1 AND affiliation = $2 AND location = $3
		ORDER BY name ASC`,
		specialty, affiliation, location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProviders(rows)
}

func (r *repoPG) FindByNamePrefix(ctx context.Context, prefix, affiliation string) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerCols+` FROM provider
		WHERE active AND name ILIKE $1 AND affiliation = $2
		ORDER BY name ASC`,
		escapeLike(prefix)+"%", affiliation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProviders(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters in caller input so a prefix
// of "%" matches a literal percent sign, not every provider.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.RUT, &p.Email, &p.Specialty, &p.Affiliation,
		&p.Location, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProviders(rows pgx.Rows) ([]Provider, error) {
	providers := []Provider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

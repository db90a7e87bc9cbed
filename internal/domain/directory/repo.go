package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("provider not found")

// Repository provides read access to the provider directory.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// FindBySpecialty returns active providers matching all three filters.
	// Callers validate that none is empty.
	FindBySpecialty(ctx context.Context, specialty, affiliation, location string) ([]Provider, error)

	// FindByNamePrefix returns active providers of the given affiliation
	// whose name starts with prefix, case-insensitive. The prefix is taken
	// literally, LIKE metacharacters included.
	FindByNamePrefix(ctx context.Context, prefix, affiliation string) ([]Provider, error)
}

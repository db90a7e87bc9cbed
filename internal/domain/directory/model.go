package directory

import (
	"time"

	"github.com/google/uuid"
)

// Provider is a care provider that owns agenda slots. The directory is
// read-only from this service's point of view; accounts are managed
// elsewhere.
type Provider struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	RUT         string    `json:"rut"`
	Email       string    `json:"email"`
	Specialty   string    `json:"specialty"`
	Affiliation string    `json:"affiliation"`
	Location    string    `json:"location"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Package household exposes the member directory, household membership
// facts and sharing preferences the gateway consumes. The gateway only
// reads these; mutation happens through the REST surface or external
// admin tooling.
package household

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a member id resolves to nothing.
var ErrNotFound = errors.New("member not found")

// Member is a household member record. HouseholdID is nil for members not
// currently attached to any household.
type Member struct {
	ID             int64
	Name           string
	HouseholdID    *int64
	SharingEnabled bool
}

// Directory resolves member records by id.
type Directory interface {
	FindMember(ctx context.Context, userID int64) (*Member, error)
}

// Membership answers whether a user belongs to a household. It is the
// single source of truth for subscription authorization; decisions are
// never cached across subscribes because membership can change while a
// connection is open.
type Membership interface {
	IsMember(ctx context.Context, householdID, userID int64) (bool, error)
}

// PositionStore persists the last known position of a member. Only the
// REST publish path writes here; the streaming path keeps no history.
type PositionStore interface {
	SavePosition(ctx context.Context, userID int64, latitude, longitude float64, at time.Time) error
}

// SharingStore toggles the sharing preference for every member of a
// household at once. Returns the number of members affected.
type SharingStore interface {
	SetHouseholdSharing(ctx context.Context, householdID int64, enabled bool) (int64, error)
}

// Store is the full persistence surface backing the gateway.
type Store interface {
	Directory
	Membership
	PositionStore
	SharingStore
}

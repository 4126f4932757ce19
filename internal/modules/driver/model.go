// README: Driver record with its last reported position.
package driver

import (
	"time"

	"dispatch/internal/types"
)

type Driver struct {
	ID           types.ID  `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	IsOnline     bool      `json:"is_online"`
	IsVerified   bool      `json:"is_verified"`
	IsBlocked    bool      `json:"is_blocked"`
	LastLocation *Location `json:"last_location"`
}

// Location is the latest ping; nil on a driver that never reported.
type Location struct {
	types.Point
	RecordedAt time.Time `json:"recorded_at"`
}

// Eligible reports whether the driver may be bound to an order.
func (d Driver) Eligible() bool {
	return d.IsOnline && d.IsVerified && !d.IsBlocked
}

// Candidate is a driver ranked by distance to a delivery point.
type Candidate struct {
	Driver
	DistanceKm float64 `json:"distance_km"`
}

// StaleCandidate is the projection the location watchdog needs.
type StaleCandidate struct {
	ID         types.ID
	RecordedAt *time.Time
}

type Filter struct {
	EligibleOnly bool
	Search       string
}

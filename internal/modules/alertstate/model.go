// README: Latest-known watchdog snapshot per alert type, plus the append-only run history.
package alertstate

import (
	"fmt"
	"time"
)

type Type string

const (
	TypeNotifications   Type = "notifications"
	TypeStuckOrders     Type = "stuck_orders"
	TypeDriverLocations Type = "driver_locations"
)

var Types = []Type{TypeNotifications, TypeStuckOrders, TypeDriverLocations}

func ParseType(v string) (Type, error) {
	for _, t := range Types {
		if string(t) == v {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown alert type %q", v)
}

// Entry is overwritten on every successful run of its type and never deleted.
type Entry struct {
	Type        Type       `json:"type"`
	LastRun     time.Time  `json:"last_run"`
	LastAlertAt *time.Time `json:"last_alert_at"`
	LastCount   int        `json:"last_count"`
	LastRate    float64    `json:"last_rate"`

	LastOldestCreatedAt  *time.Time `json:"last_oldest_created_at,omitempty"`
	LastOldestRecordedAt *time.Time `json:"last_oldest_recorded_at,omitempty"`
	LastTotal            int        `json:"last_total,omitempty"`
	LastFailed           int        `json:"last_failed,omitempty"`
	FlaggedIDs           []string   `json:"flagged_ids,omitempty"`
}

// Run is one watchdog execution, successful or not.
type Run struct {
	ID         int64     `json:"id"`
	Type       Type      `json:"type"`
	RanAt      time.Time `json:"ran_at"`
	Succeeded  bool      `json:"succeeded"`
	Alerted    bool      `json:"alerted"`
	Count      int       `json:"count"`
	Rate       float64   `json:"rate"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

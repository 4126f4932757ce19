// README: Push notification message and delivery outcome.
package notification

import "time"

type Outcome string

const (
	Delivered Outcome = "delivered"
	Failed    Outcome = "failed"
)

// Message targets an FCM topic (order_<id>, driver_<id>, ops_alerts, ...).
type Message struct {
	Target string
	Title  string
	Body   string
	Data   map[string]string
}

// Stats are delivery counts over a window.
type Stats struct {
	Total  int
	Failed int
}

// Rate is failed/total, zero when nothing was sent.
func (s Stats) Rate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Total)
}

type logEntry struct {
	Target  string
	Outcome Outcome
	Error   string
	SentAt  time.Time
}

func OrderTopic(orderID string) string { return "order_" + orderID }

func DriverTopic(driverID string) string { return "driver_" + driverID }

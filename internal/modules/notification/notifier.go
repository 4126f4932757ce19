// README: PushNotifier sends through a Sender and records every outcome.
package notification

import (
	"context"
	"log/slog"
	"time"

	"dispatch/internal/clock"
	"dispatch/internal/metrics"
)

type recorder interface {
	Record(ctx context.Context, e logEntry) error
}

type PushNotifier struct {
	sender     Sender
	recorder   recorder
	clock      clock.Clock
	log        *slog.Logger
	unrecorded map[string]bool
}

func NewPushNotifier(sender Sender, rec recorder, clk clock.Clock, log *slog.Logger) *PushNotifier {
	return &PushNotifier{sender: sender, recorder: rec, clock: clk, log: log}
}

// SkipRecording keeps sends to targets out of notification_logs and so out of the failure rate.
func (n *PushNotifier) SkipRecording(targets ...string) *PushNotifier {
	if n.unrecorded == nil {
		n.unrecorded = make(map[string]bool, len(targets))
	}
	for _, t := range targets {
		n.unrecorded[t] = true
	}
	return n
}

// Send never returns an error: the outcome is the result.
func (n *PushNotifier) Send(ctx context.Context, msg Message) Outcome {
	outcome := Delivered
	entry := logEntry{Target: msg.Target}
	if err := n.sender.Send(ctx, msg); err != nil {
		outcome = Failed
		entry.Error = err.Error()
		n.log.WarnContext(ctx, "push notification failed", "target", msg.Target, "error", err)
	}
	entry.Outcome = outcome
	entry.SentAt = n.clock.Now()
	metrics.NotificationsTotal.WithLabelValues(string(outcome)).Inc()
	if n.unrecorded[msg.Target] {
		return outcome
	}

	// The send already happened, so record it even if the caller's request is gone.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := n.recorder.Record(recCtx, entry); err != nil {
		n.log.ErrorContext(ctx, "recording notification outcome", "target", msg.Target, "error", err)
	}
	return outcome
}

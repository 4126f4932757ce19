// README: Push transports. FCM in production, a logging sender when Firebase is not configured.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
)

// Sender delivers one message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type FCMSender struct {
	client *messaging.Client
}

func NewFCMSender(client *messaging.Client) *FCMSender {
	return &FCMSender{client: client}
}

func (s *FCMSender) Send(ctx context.Context, msg Message) error {
	if msg.Target == "" {
		return fmt.Errorf("empty notification target")
	}
	_, err := s.client.Send(ctx, &messaging.Message{
		Topic: msg.Target,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	})
	if err != nil {
		return fmt.Errorf("sending FCM to topic %s: %w", msg.Target, err)
	}
	return nil
}

// LogSender only logs. Used for local runs without Firebase credentials.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Log.InfoContext(ctx, "push notification (log only)", "target", msg.Target, "title", msg.Title)
	return nil
}

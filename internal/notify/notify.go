// Package notify is the outbound boundary of the marketplace: delivering
// purchased files to buyers and pushing short status messages to users.
// The chat transport itself lives behind these interfaces.
package notify

import (
	"context"
	"log"
)

// Notifier pushes a short text message to a user. Callers treat failures
// as best-effort: a lost notification never blocks a state transition.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// FileDeliverer transmits a purchased file to a buyer. Delivery of an
// order only commits when SendFile returns nil.
type FileDeliverer interface {
	SendFile(ctx context.Context, userID int64, filePath, originalName string) error
}

// LogNotifier writes notifications and file deliveries to the process
// log. Used when no webhook endpoint is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier/deliverer.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the message.
func (n *LogNotifier) Notify(ctx context.Context, userID int64, text string) error {
	log.Printf("[Notify] user=%d: %s", userID, text)
	return nil
}

// SendFile logs the delivery.
func (n *LogNotifier) SendFile(ctx context.Context, userID int64, filePath, originalName string) error {
	log.Printf("[Notify] user=%d: deliver file %s (%s)", userID, originalName, filePath)
	return nil
}

var (
	_ Notifier      = (*LogNotifier)(nil)
	_ FileDeliverer = (*LogNotifier)(nil)
)

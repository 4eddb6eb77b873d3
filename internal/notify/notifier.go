// Package notify defines the outbound alert port. The core composes a
// message once and hands it to a Notifier; delivery failures are the
// caller's to log, never to retry.
package notify

import "context"

// Message is one outbound alert. ImagePath optionally attaches a local
// image file to the delivery when the channel supports it.
type Message struct {
	Text      string
	ImagePath string
}

// Notifier delivers a message to an external channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error

	// Name identifies the channel in logs and status output.
	Name() string
}

// Nop discards all messages. Used when no channel is configured so the
// pass pipeline never has to nil-check its notifier.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }
func (Nop) Name() string                          { return "nop" }

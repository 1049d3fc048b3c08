// Package notify carries short human-readable status notices from the core
// to whatever surface displays them. Emission is fire-and-forget: the ledger
// never waits on, or fails because of, a notice.
package notify

import (
	"context"
	"log/slog"
)

// Notifier receives one-line status notices such as "> Entry created" or
// "ERROR: Entry already exists".
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// LogNotifier writes notices to the structured log. It is the fallback when
// no message broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, text string) {
	slog.InfoContext(ctx, "Notice", "text", text)
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, text)
		}
	}
}

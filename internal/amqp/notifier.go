package amqp

import (
	"context"
	"log/slog"
)

// Notifier adapts the AMQP client to the notice interface. Publishing is
// best effort; a broker outage must never fail a ledger write.
type Notifier struct {
	client *Client
}

func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Notify(ctx context.Context, text string) {
	if err := n.client.PublishNotice(ctx, NewNoticeMessage(text)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish notice", "error", err, "text", text)
	}
}

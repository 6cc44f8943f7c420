package platform

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
)

// DirectMessager sends one direct message.
type DirectMessager interface {
	DirectMessage(ctx context.Context, userID, text string, blocks []slack.Block) error
}

// Outgoing is one direct message to send.
type Outgoing struct {
	UserID string
	Text   string
	Blocks []slack.Block
}

// Delivery is the outcome for one recipient.
type Delivery struct {
	UserID string
	Err    error
}

// Broadcast sends msgs concurrently, at most limit at a time. A failed
// recipient is logged and reported in its Delivery; it never stops the
// others.
func Broadcast(ctx context.Context, sender DirectMessager, msgs []Outgoing, limit int, logger *slog.Logger) []Delivery {
	results := make([]Delivery, len(msgs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, m := range msgs {
		g.Go(func() error {
			err := sender.DirectMessage(ctx, m.UserID, m.Text, m.Blocks)
			if err != nil {
				logger.Error("direct message failed", "user", m.UserID, "error", err)
			}
			results[i] = Delivery{UserID: m.UserID, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

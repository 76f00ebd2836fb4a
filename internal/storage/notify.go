package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ChannelNotes is the LISTEN/NOTIFY channel written to after every committed
// note change. The payload is the note ID.
const ChannelNotes = "tsuzuri_notes"

const notifyRetryDelay = time.Second

// Listen subscribes the dedicated notify connection to ChannelNotes and bumps
// Changes for every notification until ctx is done. Notifications caused by
// this process bump the revision a second time, which only costs a refetch.
//
// Without a notify connection Listen just waits for ctx: local writes still
// advance Changes.
func (p *Postgres) Listen(ctx context.Context) error {
	if p.notifyConn == nil {
		p.logger.Info("storage: no notify connection, cross-process changes disabled")
		<-ctx.Done()
		return nil
	}

	if _, err := p.notifyConn.Exec(ctx, "LISTEN "+pgx.Identifier{ChannelNotes}.Sanitize()); err != nil {
		return fmt.Errorf("storage: listen %s: %w", ChannelNotes, err)
	}
	p.logger.Info("storage: listening for notifications", "channel", ChannelNotes)

	for {
		n, err := p.notifyConn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("storage: notification error, retrying", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(notifyRetryDelay):
			}
			continue
		}
		p.logger.Debug("storage: note changed", "channel", n.Channel, "note_id", n.Payload)
		bump(p.changes)
	}
}

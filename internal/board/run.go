package board

import (
	"context"
	"log/slog"
	"time"

	"taskboard-api/internal/realtime"
)

// Run reloads the board every interval until ctx is done. Events received on
// events trigger an extra reload when another session made the change. A
// failed reload is logged and retried on the next tick.
func (b *Board) Run(ctx context.Context, interval time.Duration, events <-chan realtime.Event) error {
	if err := b.Reload(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Wait()
			return ctx.Err()
		case <-ticker.C:
			if err := b.Reload(ctx); err != nil {
				slog.WarnContext(ctx, "periodic board reload failed", "error", err)
			}
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := b.HandleEvent(ctx, evt); err != nil {
				slog.WarnContext(ctx, "board reload on event failed", "event", evt.Type, "task_id", evt.TaskID, "error", err)
			}
		}
	}
}

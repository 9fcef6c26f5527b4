package notifier

import (
	"context"

	"github.com/italolelis/transfer_monitor/internal/logctx"
)

// LogNotifier writes status updates to the context logger. It is the
// fallback when no chat sink is configured.
type LogNotifier struct{}

func (LogNotifier) Emit(ctx context.Context, sessionID string, text string) error {
	logctx.LoggerFromContext(ctx).InfoContext(ctx, "transfer status", "session_id", sessionID, "status", text)

	return nil
}

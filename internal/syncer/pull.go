package syncer

import (
	"context"
	"fmt"
	"log/slog"
)

// PullResult summarizes one pull of remote rows.
type PullResult struct {
	Received int `json:"received"`
	Merged   int `json:"merged"`
}

// Pull fetches the owner's remote rows and merges them into the local
// store by server id. Unsynced local edits are never overwritten.
func (e *Engine) Pull(ctx context.Context) (PullResult, error) {
	if msg := e.precondition(); msg != "" {
		return PullResult{}, fmt.Errorf("pull: %s", msg)
	}

	rows, err := e.remote.SelectByOwner(ctx, e.owner)
	if err != nil {
		return PullResult{}, fmt.Errorf("pull: %w", err)
	}

	merged := e.local.MergeRemote(ctx, rows)
	slog.Info("pull completed",
		"component", "syncer",
		"action", "pull",
		"received", len(rows),
		"merged", merged,
	)
	return PullResult{Received: len(rows), Merged: merged}, nil
}

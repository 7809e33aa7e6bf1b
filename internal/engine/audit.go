package engine

import (
	"context"

	"projectmarket/internal/domain"
	"projectmarket/internal/engine/auth"
	"projectmarket/internal/repo"
)

// ListEvents returns the audit log newest first.
func (e Engine) ListEvents(ctx context.Context, actor domain.User, f repo.EventFilters) ([]domain.Event, error) {
	if err := auth.Authorize(subject(actor), auth.CapEventList, auth.Resource{}); err != nil {
		return nil, err
	}
	evts, err := e.Repo.LatestEvents(ctx, f)
	if err != nil {
		return nil, e.fail("list events", err)
	}
	return evts, nil
}

package recorder

import (
	"context"

	"github.com/streamvault/recordbot/internal/models"
	"github.com/streamvault/recordbot/internal/recordings"
	"github.com/streamvault/recordbot/internal/subscribers"
	"github.com/streamvault/recordbot/internal/watchlist"
)

// RepoStore adapts the database repositories to the recorder's Store and
// WatchlistSource interfaces.
type RepoStore struct {
	Subscribers *subscribers.Repository
	Watchlist   *watchlist.Repository
	Recordings  *recordings.Repository
}

func (r *RepoStore) ListFunded(ctx context.Context) ([]models.FundedModel, error) {
	return r.Watchlist.ListFunded(ctx)
}

func (r *RepoStore) RemainingCredit(ctx context.Context, subscriberID int64) (float64, error) {
	return r.Subscribers.RemainingCredit(ctx, subscriberID)
}

func (r *RepoStore) DeductCredit(ctx context.Context, subscriberID int64, seconds float64) error {
	return r.Subscribers.DeductCredit(ctx, subscriberID, seconds)
}

func (r *RepoStore) StartRecording(ctx context.Context, subscriberID int64, model string) (int64, error) {
	return r.Recordings.Start(ctx, subscriberID, model)
}

func (r *RepoStore) EndRecording(ctx context.Context, id int64, durationSeconds float64) error {
	return r.Recordings.End(ctx, id, durationSeconds)
}

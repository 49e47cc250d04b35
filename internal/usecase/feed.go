package usecase

import (
	"context"
	"encoding/json"

	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// Change feed delivery is best-effort: subscribers also get a snapshot read on
// connect, so a lost event only delays an update until the next one.

// AnnounceIllustration publishes the record on the change feed; failures are only logged.
func AnnounceIllustration(ctx context.Context, feed adapter.ChangeFeed, il *model.Illustration, log *zerolog.Logger) {
	if feed == nil || il == nil {
		return
	}
	announce(ctx, feed, string(model.JobKindGeneration), il.ID, string(il.Status), il.Version, il, log)
}

func AnnounceBrand(ctx context.Context, feed adapter.ChangeFeed, b *model.Brand, log *zerolog.Logger) {
	if feed == nil || b == nil {
		return
	}
	announce(ctx, feed, string(model.JobKindTraining), b.ID, string(b.Status), b.Version, b, log)
}

func announce(ctx context.Context, feed adapter.ChangeFeed, kind, id, status string, version int64, record any, log *zerolog.Logger) {
	raw, err := json.Marshal(record)
	if err != nil {
		log.Warn().Err(err).Str("job_id", id).Msg("encode change event")
		return
	}
	change := adapter.JobChange{Kind: kind, ID: id, Status: status, Version: version, Record: raw}
	if err := feed.Notify(ctx, change); err != nil {
		log.Warn().Err(err).Str("job_id", id).Str("status", status).Msg("change feed notify failed")
	}
}

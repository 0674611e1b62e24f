package location

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/hearthbeat/hearthbeat/internal/household"
	"github.com/hearthbeat/hearthbeat/internal/metrics"
	"github.com/hearthbeat/hearthbeat/internal/pubsub"
	"github.com/hearthbeat/hearthbeat/internal/topic"
)

// Outcome describes what the router did with one validated update.
type Outcome string

const (
	OutcomePublished       Outcome = "published"
	OutcomeUnknownUser     Outcome = "unknown_user"
	OutcomeSharingDisabled Outcome = "sharing_disabled"
	OutcomeNoHousehold     Outcome = "no_household"
	OutcomePublishFailed   Outcome = "publish_failed"
)

// Router resolves the destination topic for validated updates and gates
// publishing on the reporting member's sharing preference. Both the
// streaming and REST publish paths funnel through here so the semantics
// are identical regardless of transport.
type Router struct {
	directory household.Directory
	publisher pubsub.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewRouter(directory household.Directory, publisher pubsub.Publisher, m *metrics.Metrics, logger *zap.Logger) *Router {
	return &Router{
		directory: directory,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Route publishes a validated update to the reporting member's household
// topic, or suppresses it. At most one publish call per update; no
// retries, no buffering. Every outcome is absorbed here; nothing on this
// path is allowed to fail the stream.
func (r *Router) Route(ctx context.Context, upd *Update) Outcome {
	member, err := r.directory.FindMember(ctx, *upd.UserID)
	if err != nil {
		r.logger.Warn("dropping update from unknown user",
			zap.Int64("userID", *upd.UserID),
			zap.Error(err),
		)
		r.metrics.UpdatesDropped.WithLabelValues(string(OutcomeUnknownUser)).Inc()
		return OutcomeUnknownUser
	}

	if !member.SharingEnabled {
		r.logger.Debug("sharing disabled, suppressing update", zap.Int64("userID", member.ID))
		r.metrics.UpdatesSuppressed.WithLabelValues(string(OutcomeSharingDisabled)).Inc()
		return OutcomeSharingDisabled
	}
	if member.HouseholdID == nil {
		r.logger.Debug("member has no household, suppressing update", zap.Int64("userID", member.ID))
		r.metrics.UpdatesSuppressed.WithLabelValues(string(OutcomeNoHousehold)).Inc()
		return OutcomeNoHousehold
	}

	payload, err := json.Marshal(upd)
	if err != nil {
		r.metrics.UpdatesDropped.WithLabelValues(string(OutcomePublishFailed)).Inc()
		return OutcomePublishFailed
	}

	dest := topic.ForHousehold(*member.HouseholdID)
	if err := r.publisher.Publish(ctx, dest, payload); err != nil {
		r.logger.Warn("publish failed",
			zap.String("topic", dest),
			zap.Error(err),
		)
		r.metrics.UpdatesDropped.WithLabelValues(string(OutcomePublishFailed)).Inc()
		return OutcomePublishFailed
	}

	r.metrics.UpdatesPublished.Inc()
	return OutcomePublished
}

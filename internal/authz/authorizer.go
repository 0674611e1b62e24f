// Package authz decides whether a connection may subscribe to a
// household location topic.
package authz

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hearthbeat/hearthbeat/internal/household"
	"github.com/hearthbeat/hearthbeat/internal/metrics"
	"github.com/hearthbeat/hearthbeat/internal/topic"
)

// Rejection reasons surfaced to the client in the subscribe ack.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonNotMember       = "not a household member"
	ReasonCheckFailed     = "membership check failed"
)

// Decision is the outcome of one subscribe authorization. Rejections are
// ordinary values, not errors; they abort only the subscribe that
// triggered them.
type Decision struct {
	Allowed bool
	Reason  string
}

func approved() Decision              { return Decision{Allowed: true} }
func rejected(reason string) Decision { return Decision{Reason: reason} }

// Authorizer intercepts subscribe requests to location topics and checks
// household membership against the membership oracle.
type Authorizer struct {
	membership household.Membership
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New builds an authorizer. timeout bounds each membership lookup; zero
// leaves the lookup unbounded.
func New(membership household.Membership, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Authorizer {
	return &Authorizer{
		membership: membership,
		timeout:    timeout,
		metrics:    m,
		logger:     logger,
	}
}

// Authorize evaluates one subscribe request. Topics outside the location
// family pass through unconditionally. Location topics require a resolved
// identity and a positive membership answer; each subscribe is checked
// independently, with no caching of prior decisions.
func (a *Authorizer) Authorize(ctx context.Context, identity *int64, t string) Decision {
	householdID, ok := topic.HouseholdID(t)
	if !ok {
		return approved()
	}

	if identity == nil {
		a.logger.Debug("subscribe without identity rejected", zap.String("topic", t))
		a.metrics.SubscribesRejected.WithLabelValues(ReasonUnauthenticated).Inc()
		return rejected(ReasonUnauthenticated)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	member, err := a.membership.IsMember(ctx, householdID, *identity)
	if err != nil {
		a.logger.Warn("membership lookup failed",
			zap.Int64("householdID", householdID),
			zap.Int64("userID", *identity),
			zap.Error(err),
		)
		a.metrics.SubscribesRejected.WithLabelValues(ReasonCheckFailed).Inc()
		return rejected(ReasonCheckFailed)
	}
	if !member {
		a.metrics.SubscribesRejected.WithLabelValues(ReasonNotMember).Inc()
		return rejected(ReasonNotMember)
	}

	a.metrics.SubscribesAuthorized.Inc()
	return approved()
}

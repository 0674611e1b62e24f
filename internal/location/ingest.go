package location

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/hearthbeat/hearthbeat/internal/metrics"
)

// Ingest is the streaming inbound path: raw frames from WebSocket
// clients are decoded, validated and handed to the router. The stream is
// best-effort telemetry, so malformed frames are dropped with a warning
// and no error reaches the sender.
type Ingest struct {
	router  *Router
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewIngest(router *Router, m *metrics.Metrics, logger *zap.Logger) *Ingest {
	return &Ingest{router: router, metrics: m, logger: logger}
}

// HandleRaw processes one inbound position report.
func (i *Ingest) HandleRaw(ctx context.Context, data []byte) {
	var upd Update
	if err := json.Unmarshal(data, &upd); err != nil {
		i.logger.Warn("dropping unparsable location update", zap.Error(err))
		i.metrics.UpdatesDropped.WithLabelValues("malformed").Inc()
		return
	}
	if err := upd.Validate(); err != nil {
		i.logger.Warn("dropping incomplete location update",
			zap.Bool("hasUserID", upd.UserID != nil),
			zap.Bool("hasLatitude", upd.Latitude != nil),
			zap.Bool("hasLongitude", upd.Longitude != nil),
		)
		i.metrics.UpdatesDropped.WithLabelValues("malformed").Inc()
		return
	}

	i.router.Route(ctx, &upd)
}

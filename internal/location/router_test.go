package location

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hearthbeat/hearthbeat/internal/household"
	"github.com/hearthbeat/hearthbeat/internal/metrics"
)

type capturePublisher struct {
	topics   []string
	payloads [][]byte
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func ptrInt64(v int64) *int64       { return &v }
func ptrFloat64(v float64) *float64 { return &v }

func update(userID int64, lat, lon float64) *Update {
	return &Update{UserID: ptrInt64(userID), Latitude: ptrFloat64(lat), Longitude: ptrFloat64(lon)}
}

func newTestRouter(t *testing.T) (*Router, *capturePublisher, *household.MemoryStore) {
	t.Helper()
	store := household.NewMemoryStore()
	store.AddMember(household.Member{ID: 7, Name: "Astrid", HouseholdID: ptrInt64(3), SharingEnabled: true})
	store.AddMember(household.Member{ID: 8, Name: "Bjørn", HouseholdID: ptrInt64(3), SharingEnabled: false})
	store.AddMember(household.Member{ID: 11, Name: "Solo", SharingEnabled: true})

	pub := &capturePublisher{}
	r := NewRouter(store, pub, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	return r, pub, store
}

func TestRoutePublishesToHouseholdTopic(t *testing.T) {
	r, pub, _ := newTestRouter(t)

	outcome := r.Route(context.Background(), update(7, 63.4, 10.4))
	if outcome != OutcomePublished {
		t.Fatalf("expected publish, got %s", outcome)
	}
	if len(pub.topics) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(pub.topics))
	}
	if pub.topics[0] != "household-location:3" {
		t.Errorf("published to wrong topic %q", pub.topics[0])
	}

	var payload map[string]any
	if err := json.Unmarshal(pub.payloads[0], &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload["userId"] != float64(7) || payload["latitude"] != 63.4 || payload["longitude"] != 10.4 {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestRouteSharingDisabledNeverPublishes(t *testing.T) {
	r, pub, _ := newTestRouter(t)

	outcome := r.Route(context.Background(), update(8, 63.4, 10.4))
	if outcome != OutcomeSharingDisabled {
		t.Fatalf("expected sharing_disabled, got %s", outcome)
	}
	if len(pub.topics) != 0 {
		t.Errorf("expected zero publishes, got %d", len(pub.topics))
	}
}

func TestRouteNoHouseholdNeverPublishes(t *testing.T) {
	r, pub, _ := newTestRouter(t)

	outcome := r.Route(context.Background(), update(11, 63.4, 10.4))
	if outcome != OutcomeNoHousehold {
		t.Fatalf("expected no_household, got %s", outcome)
	}
	if len(pub.topics) != 0 {
		t.Errorf("expected zero publishes, got %d", len(pub.topics))
	}
}

func TestRouteUnknownUserDrops(t *testing.T) {
	r, pub, _ := newTestRouter(t)

	outcome := r.Route(context.Background(), update(99, 63.4, 10.4))
	if outcome != OutcomeUnknownUser {
		t.Fatalf("expected unknown_user, got %s", outcome)
	}
	if len(pub.topics) != 0 {
		t.Errorf("expected zero publishes, got %d", len(pub.topics))
	}
}

func TestRouteSharingToggleTakesEffect(t *testing.T) {
	r, pub, store := newTestRouter(t)

	if _, err := store.SetHouseholdSharing(context.Background(), 3, false); err != nil {
		t.Fatal(err)
	}
	if outcome := r.Route(context.Background(), update(7, 63.4, 10.4)); outcome != OutcomeSharingDisabled {
		t.Fatalf("expected sharing_disabled after toggle, got %s", outcome)
	}
	if len(pub.topics) != 0 {
		t.Errorf("expected zero publishes, got %d", len(pub.topics))
	}
}

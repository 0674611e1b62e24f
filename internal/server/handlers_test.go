package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hearthbeat/hearthbeat/internal/auth"
	"github.com/hearthbeat/hearthbeat/internal/authz"
	"github.com/hearthbeat/hearthbeat/internal/household"
	"github.com/hearthbeat/hearthbeat/internal/location"
	"github.com/hearthbeat/hearthbeat/internal/metrics"
	"github.com/hearthbeat/hearthbeat/internal/ws"
)

type capturePublisher struct {
	topics []string
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.topics = append(p.topics, topic)
	return nil
}

type fixture struct {
	handler  http.Handler
	store    *household.MemoryStore
	pub      *capturePublisher
	resolver *auth.Resolver
}

func ptrInt64(v int64) *int64 { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())

	store := household.NewMemoryStore()
	store.AddMember(household.Member{ID: 7, Name: "Astrid", HouseholdID: ptrInt64(3), SharingEnabled: true})
	store.AddMember(household.Member{ID: 8, Name: "Bjørn", HouseholdID: ptrInt64(3), SharingEnabled: false})
	store.AddMember(household.Member{ID: 9, Name: "Kari", HouseholdID: ptrInt64(5), SharingEnabled: true})

	resolver := auth.NewResolver("test-signing-key", "hearthbeat", "hearthbeat-clients")
	authorizer := authz.New(store, 0, m, logger)

	pub := &capturePublisher{}
	router := location.NewRouter(store, pub, m, logger)
	ingest := location.NewIngest(router, m, logger)

	hub := ws.NewHub(ws.Config{SendBuffer: 8, MaxMessageSize: 64 * 1024}, resolver, authorizer, ingest, m, logger)

	srv := NewServer(hub, router, store, logger)
	return &fixture{
		handler:  NewRouter(srv, resolver, prometheus.NewRegistry(), logger),
		store:    store,
		pub:      pub,
		resolver: resolver,
	}
}

func (f *fixture) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := f.resolver.GenerateToken(userID, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not JSON: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestUpdatePosition(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPut, "/api/users/me/position", f.token(t, 7),
		`{"userId":7,"latitude":63.4,"longitude":10.4}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["broadcast"] != true {
		t.Errorf("expected broadcast=true, got %v", body)
	}

	if len(f.pub.topics) != 1 || f.pub.topics[0] != "household-location:3" {
		t.Errorf("expected one publish to household-location:3, got %v", f.pub.topics)
	}

	pos, ok := f.store.LastPosition(7)
	if !ok {
		t.Fatal("expected position to be persisted")
	}
	if pos.Latitude != 63.4 || pos.Longitude != 10.4 {
		t.Errorf("unexpected stored position %+v", pos)
	}
}

func TestUpdatePositionMissingFields(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, 7)

	bodies := []string{
		`{"userId":7,"longitude":10.4}`,
		`{"userId":7,"latitude":null,"longitude":10.4}`,
		`{"latitude":63.4,"longitude":10.4}`,
		`{}`,
	}
	for _, body := range bodies {
		rec := f.request(t, http.MethodPut, "/api/users/me/position", token, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %s, got %d", body, rec.Code)
		}
		if resp := decodeBody(t, rec); resp["error"] == "" {
			t.Errorf("expected descriptive error body for %s", body)
		}
	}

	if len(f.pub.topics) != 0 {
		t.Errorf("expected zero publishes, got %v", f.pub.topics)
	}
}

func TestUpdatePositionRequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPut, "/api/users/me/position", "",
		`{"userId":7,"latitude":63.4,"longitude":10.4}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = f.request(t, http.MethodPut, "/api/users/me/position", "bogus-token",
		`{"userId":7,"latitude":63.4,"longitude":10.4}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rec.Code)
	}
}

func TestUpdatePositionSharingDisabled(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPut, "/api/users/me/position", f.token(t, 8),
		`{"userId":8,"latitude":63.4,"longitude":10.4}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["broadcast"] != false {
		t.Errorf("expected broadcast=false for disabled sharing, got %v", body)
	}
	if len(f.pub.topics) != 0 {
		t.Errorf("expected zero publishes, got %v", f.pub.topics)
	}

	// Position is still persisted; only the broadcast is suppressed.
	if _, ok := f.store.LastPosition(8); !ok {
		t.Error("expected position to be persisted despite disabled sharing")
	}
}

func TestSetSharing(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPut, "/api/households/3/sharing", f.token(t, 7), `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["updated"] != float64(2) {
		t.Errorf("expected 2 members updated, got %v", body)
	}

	m, err := f.store.FindMember(context.Background(), 8)
	if err != nil {
		t.Fatal(err)
	}
	if m.SharingEnabled {
		t.Error("expected sharing disabled after toggle")
	}
}

func TestSetSharingRejectsNonMember(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPut, "/api/households/3/sharing", f.token(t, 9), `{"enabled":false}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestSetSharingValidatesInput(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, 7)

	rec := f.request(t, http.MethodPut, "/api/households/abc/sharing", token, `{"enabled":false}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad household id, got %d", rec.Code)
	}

	rec = f.request(t, http.MethodPut, "/api/households/3/sharing", token, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing enabled flag, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Errorf("unexpected health body %v", body)
	}
}

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salesbot_backend/internal/conversation"
	"salesbot_backend/internal/funnel"
	apphttp "salesbot_backend/internal/http"
	"salesbot_backend/internal/leads/repository"
	"salesbot_backend/platform/logger"
	"salesbot_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeLeads struct {
	since time.Time
	items []repository.Lead
}

func (f *fakeLeads) ListSince(_ context.Context, since time.Time) ([]repository.Lead, error) {
	f.since = since
	return f.items, nil
}

func setup(t *testing.T) (*gin.Engine, *conversation.Store, *fakeLeads) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend, err := conversation.OpenFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	store := conversation.NewStore(backend, logger.New("development"), conversation.WithClock(func() time.Time { return now }))
	leads := &fakeLeads{}

	h := NewHandler(store, leads, nil, validator.New(), logger.New("development"))
	h.now = func() time.Time { return now }

	r := gin.New()
	NewModule(h).RegisterRoutes(&apphttp.RouterContext{Admin: r.Group("/api/v1/admin")})
	return r, store, leads
}

func seedCollected(t *testing.T, store *conversation.Store, key conversation.Key) {
	t.Helper()
	stage := funnel.StageDone
	draft, kind := "anna@example.com", "email"
	at := now.Add(-time.Hour)
	_, err := store.Merge(context.Background(), key, conversation.Patch{
		Append:         []conversation.Message{{Role: conversation.RoleInbound, Text: "anna@example.com", At: at}},
		Stage:          &stage,
		ContactDraft:   &draft,
		ContactKind:    &kind,
		LeadCapturedAt: &at,
		FollowUpSentAt: &at,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListConversationsFiltersByChannel(t *testing.T) {
	r, store, _ := setup(t)
	seedCollected(t, store, conversation.NewKey("telegram", "bot1", "1"))
	seedCollected(t, store, conversation.NewKey("instagram", "page1", "2"))

	w := do(r, http.MethodGet, "/api/v1/admin/conversations?channel=telegram", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ConversationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Items[0].Key.Channel != "telegram" {
		t.Fatalf("expected one telegram conversation, got %+v", resp)
	}

	if w := do(r, http.MethodGet, "/api/v1/admin/conversations?channel=tele%20gram", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad channel, got %d", w.Code)
	}
}

func TestResetConversationReopensContactCollection(t *testing.T) {
	r, store, _ := setup(t)
	key := conversation.NewKey("telegram", "bot1", "1")
	seedCollected(t, store, key)

	w := do(r, http.MethodPost, "/api/v1/admin/conversations/reset", `{"channel":"telegram","scopeId":"bot1","externalId":"1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	conv := store.Get(context.Background(), key)
	if conv.Stage != funnel.StageAskContact {
		t.Fatalf("expected ASK_CONTACT, got %s", conv.Stage)
	}
	if !conv.LeadCapturedAt.IsZero() || conv.ContactDraft != "" {
		t.Fatalf("expected lead capture and contact cleared, got %v %q", conv.LeadCapturedAt, conv.ContactDraft)
	}
	if conv.FollowUpSentAt.IsZero() || len(conv.History) != 1 {
		t.Fatal("expected follow-up marker and history kept on a partial reset")
	}
}

func TestResetConversationFull(t *testing.T) {
	r, store, _ := setup(t)
	key := conversation.NewKey("telegram", "bot1", "1")
	seedCollected(t, store, key)

	w := do(r, http.MethodPost, "/api/v1/admin/conversations/reset", `{"channel":"telegram","scopeId":"bot1","externalId":"1","full":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	conv := store.Get(context.Background(), key)
	if conv.Stage != funnel.StageNew || !conv.FollowUpSentAt.IsZero() || !conv.LeadCapturedAt.IsZero() || len(conv.History) != 0 {
		t.Fatalf("expected a fresh conversation, got %+v", conv)
	}
}

func TestResetConversationValidates(t *testing.T) {
	r, _, _ := setup(t)

	tests := map[string]string{
		"missing external id": `{"channel":"telegram"}`,
		"bad channel":         `{"channel":"tg-1","externalId":"1"}`,
		"not json":            `{`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if w := do(r, http.MethodPost, "/api/v1/admin/conversations/reset", body); w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestListLeadsSince(t *testing.T) {
	r, _, leads := setup(t)
	leads.items = []repository.Lead{{ContactValue: "anna@example.com", Channel: "telegram"}}

	w := do(r, http.MethodGet, "/api/v1/admin/leads", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !leads.since.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("expected default lookback of 24h, got %v", leads.since)
	}

	w = do(r, http.MethodGet, "/api/v1/admin/leads?since=2026-03-01T00:00:00Z", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !leads.since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected since from query, got %v", leads.since)
	}
	var resp LeadsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Total != 1 {
		t.Fatalf("expected one lead, got %+v err=%v", resp, err)
	}

	if w := do(r, http.MethodGet, "/api/v1/admin/leads?since=yesterday", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

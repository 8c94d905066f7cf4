package meta

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"salesbot_backend/internal/channel"
	"salesbot_backend/internal/conversation"
	"salesbot_backend/platform/apperr"
	"salesbot_backend/platform/config"
	"salesbot_backend/platform/logger"
)

func newAdapter(baseURL string) *Adapter {
	return New(Options{
		Channel:          "instagram",
		Object:           "instagram",
		DefaultBaseURL:   baseURL,
		Settings:         config.ChannelSettings{AccessToken: "tok", AppSecret: "secret", VerifyToken: "verify-me"},
		VerifySignatures: true,
	}, logger.New("development"))
}

const samplePayload = `{
  "object": "instagram",
  "entry": [{
    "id": "page-1",
    "time": 1700000000000,
    "messaging": [
      {"sender": {"id": "user-9"}, "recipient": {"id": "page-1"}, "timestamp": 1700000000000,
       "message": {"mid": "m_1", "text": "how much?"}},
      {"sender": {"id": "page-1"}, "recipient": {"id": "user-9"}, "timestamp": 1700000001000,
       "message": {"mid": "m_2", "text": "our reply", "is_echo": true}},
      {"sender": {"id": "user-9"}, "recipient": {"id": "page-1"}, "timestamp": 1700000002000,
       "message": {"mid": "m_3", "attachments": [{"type": "image", "payload": {"url": "https://cdn.example/1.jpg"}}]}},
      {"sender": {"id": "user-9"}, "recipient": {"id": "page-1"}, "timestamp": 1700000003000}
    ]
  }]
}`

func TestNormalize(t *testing.T) {
	a := newAdapter("http://unused")
	events, err := a.Normalize([]byte(samplePayload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 message events, got %d", len(events))
	}

	want := conversation.NewKey("instagram", "page-1", "user-9")
	for _, ev := range events {
		if ev.Key != want {
			t.Fatalf("expected all events keyed to %v, got %v", want, ev.Key)
		}
	}
	if events[0].Text != "how much?" || events[0].IsEcho {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if !events[1].IsEcho {
		t.Fatalf("expected second event to be an echo")
	}
	if len(events[2].Media) != 1 || events[2].Media[0].Kind != conversation.MediaImage {
		t.Fatalf("expected image attachment, got %+v", events[2].Media)
	}
}

func TestNormalizeIgnoresOtherObjects(t *testing.T) {
	a := newAdapter("http://unused")
	events, err := a.Normalize([]byte(`{"object":"page","entry":[{"id":"p","messaging":[{"sender":{"id":"u"},"message":{"text":"hi"}}]}]}`))
	if err != nil || len(events) != 0 {
		t.Fatalf("expected foreign object to be ignored, got %v %v", events, err)
	}
}

func TestVerify(t *testing.T) {
	a := newAdapter("http://unused")
	body := []byte(samplePayload)

	header := http.Header{}
	header.Set(signatureHeader, channel.SignHMACSHA256("secret", body))
	if err := a.Verify(header, body); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	header.Set(signatureHeader, channel.SignHMACSHA256("wrong", body))
	if err := a.Verify(header, body); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestHandshake(t *testing.T) {
	a := newAdapter("http://unused")
	q := url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"verify-me"}, "hub.challenge": {"12345"}}
	challenge, err := a.Handshake(q)
	if err != nil || challenge != "12345" {
		t.Fatalf("expected challenge echo, got %q %v", challenge, err)
	}

	q.Set("hub.verify_token", "nope")
	if _, err := a.Handshake(q); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSendClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   bool
		transient bool
	}{
		{"ok", http.StatusOK, `{"message_id":"m"}`, false, false},
		{"server error", http.StatusBadGateway, `{}`, true, true},
		{"flagged transient", http.StatusBadRequest, `{"error":{"message":"try later","code":2,"is_transient":true}}`, true, true},
		{"invalid recipient", http.StatusBadRequest, `{"error":{"message":"No matching user found","code":100}}`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/me/messages" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer tok" {
					t.Errorf("expected bearer credential")
				}
				raw, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(raw, &got)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := newAdapter(srv.URL).Send(context.Background(), conversation.NewKey("instagram", "page-1", "user-9"), "hello")
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if tt.wantErr && apperr.IsTransient(err) != tt.transient {
				t.Fatalf("expected transient=%v, got %v", tt.transient, err)
			}
			recipient, _ := got["recipient"].(map[string]any)
			if recipient["id"] != "user-9" {
				t.Fatalf("expected recipient user-9, got %v", got)
			}
		})
	}
}

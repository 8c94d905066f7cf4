package openaimodel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"salesbot_backend/platform/apperr"
)

type capturedRequest struct {
	Model    string            `json:"model"`
	Messages []json.RawMessage `json:"messages"`
}

func newTestServer(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("expected bearer auth, got %q", got)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Fatalf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func generateOnce(t *testing.T, m *Model, req *model.LLMRequest) (*model.LLMResponse, error) {
	t.Helper()
	var (
		resp  *model.LLMResponse
		err   error
		count int
	)
	for r, e := range m.GenerateContent(context.Background(), req, false) {
		resp, err = r, e
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one response, got %d", count)
	}
	return resp, err
}

func TestGenerateContentMapsRolesAndSystemInstruction(t *testing.T) {
	var captured capturedRequest
	srv := newTestServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":" Hello there "}}]}`, &captured)
	defer srv.Close()

	m := NewModel(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "test-model"})
	req := &model.LLMRequest{
		Contents: []*genai.Content{
			{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText("hi")}},
			{Role: genai.RoleModel, Parts: []*genai.Part{genai.NewPartFromText("hello")}},
			{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText("price?")}},
		},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText("be brief")}},
		},
	}

	resp, err := generateOnce(t, m, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Model != "test-model" {
		t.Fatalf("expected model test-model, got %q", captured.Model)
	}
	if len(captured.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(captured.Messages))
	}

	roles := make([]string, 0, len(captured.Messages))
	for _, raw := range captured.Messages {
		var msg struct {
			Role string `json:"role"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		roles = append(roles, msg.Role)
	}
	if strings.Join(roles, ",") != "system,user,assistant,user" {
		t.Fatalf("unexpected roles %v", roles)
	}

	if resp.Content == nil || len(resp.Content.Parts) != 1 || resp.Content.Parts[0].Text != "Hello there" {
		t.Fatalf("expected trimmed text part, got %+v", resp.Content)
	}
}

func TestGenerateContentSendsImagesAsMultiContent(t *testing.T) {
	var captured capturedRequest
	srv := newTestServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"Nice photo"}}]}`, &captured)
	defer srv.Close()

	m := NewModel(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	req := &model.LLMRequest{
		Contents: []*genai.Content{{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				genai.NewPartFromText("what about this?"),
				{FileData: &genai.FileData{FileURI: "https://cdn.example.com/a.jpg", MIMEType: "image/jpeg"}},
			},
		}},
	}

	if _, err := generateOnce(t, m, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(captured.Messages))
	}
	if !strings.Contains(string(captured.Messages[0]), `"image_url"`) || !strings.Contains(string(captured.Messages[0]), "https://cdn.example.com/a.jpg") {
		t.Fatalf("expected image part in %s", captured.Messages[0])
	}
}

func TestGenerateContentClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, transient: true},
		{name: "server error", status: http.StatusBadGateway, transient: true},
		{name: "bad request", status: http.StatusBadRequest, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, `{"error":{"message":"nope","type":"error"}}`, nil)
			defer srv.Close()

			m := NewModel(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
			req := &model.LLMRequest{Contents: []*genai.Content{genai.NewContentFromText("hi", genai.RoleUser)}}

			_, err := generateOnce(t, m, req)
			if err == nil {
				t.Fatalf("expected error")
			}
			if apperr.IsTransient(err) != tt.transient {
				t.Fatalf("expected transient=%v, got %v", tt.transient, err)
			}
		})
	}
}

func TestTranscriberReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" how much is the growth package "}`))
	}))
	defer srv.Close()

	tr := NewTranscriber(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	text, err := tr.Transcribe(context.Background(), strings.NewReader("OggS"), "voice.ogg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "how much is the growth package" {
		t.Fatalf("expected trimmed transcript, got %q", text)
	}
}

package instagram

import (
	"testing"

	"salesbot_backend/platform/config"
	"salesbot_backend/platform/logger"
)

func TestNewUsesInstagramObject(t *testing.T) {
	a := New(config.ChannelSettings{AccessToken: "tok"}, false, logger.New("development"))
	if a.Name() != Name {
		t.Fatalf("expected name %q, got %q", Name, a.Name())
	}
	events, err := a.Normalize([]byte(`{"object":"page","entry":[{"id":"p","messaging":[{"sender":{"id":"u"},"message":{"text":"hi"}}]}]}`))
	if err != nil || len(events) != 0 {
		t.Fatalf("expected page payloads to be ignored, got %v %v", events, err)
	}
}

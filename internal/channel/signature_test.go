package channel

import (
	"testing"

	"salesbot_backend/platform/apperr"
)

func TestVerifyHMACSHA256(t *testing.T) {
	body := []byte(`{"object":"instagram"}`)
	good := SignHMACSHA256("app-secret", body)

	tests := []struct {
		name   string
		secret string
		header string
		ok     bool
	}{
		{"valid", "app-secret", good, true},
		{"wrong secret", "other", good, false},
		{"missing header", "app-secret", "", false},
		{"not hex", "app-secret", "sha256=zz", false},
		{"unconfigured secret", "", good, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyHMACSHA256(tt.secret, tt.header, body)
			if tt.ok && err != nil {
				t.Fatalf("expected valid signature, got %v", err)
			}
			if !tt.ok && !apperr.Is(err, apperr.KindUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestVerifySecretToken(t *testing.T) {
	if err := VerifySecretToken("s3cret", "s3cret"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := VerifySecretToken("s3cret", "nope"); err == nil {
		t.Fatalf("expected mismatch to fail")
	}
}

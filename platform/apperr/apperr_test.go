package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{NotFound("missing"), http.StatusNotFound},
		{Validation("bad"), http.StatusBadRequest},
		{BadRequest("bad"), http.StatusBadRequest},
		{Forbidden("no"), http.StatusForbidden},
		{Unauthorized("who"), http.StatusUnauthorized},
		{Transient("later", errors.New("timeout")), http.StatusServiceUnavailable},
		{Rejected("refused", errors.New("400")), http.StatusBadGateway},
		{New(KindUnknown, "?"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("send telegram: %w", Transient("provider unavailable", cause))

	if !IsTransient(err) {
		t.Fatal("expected wrapped error to stay transient")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("expected plain errors to be unknown")
	}
	if IsTransient(Rejected("refused", cause)) {
		t.Fatal("expected rejections not to be retried")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindBadRequest, "decode telegram update", errors.New("unexpected EOF"))
	if err.Error() != "decode telegram update: unexpected EOF" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if NotFound("lead").Error() != "lead" {
		t.Fatal("expected bare message without a cause")
	}
}

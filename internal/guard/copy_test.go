package guard

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCopyDefault(t *testing.T) {
	c, err := LoadCopy("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if len(c.Packages) != 3 {
		t.Fatalf("expected 3 packages, got %d", len(c.Packages))
	}
	if c.Limits("unknown-channel").MaxRunes != c.Channels["default"].MaxRunes {
		t.Fatalf("expected default limits for unknown channel")
	}
	if c.Lang("de").Fallback != c.Lang("en").Fallback {
		t.Fatalf("expected unknown language to fall back to default")
	}
}

func TestLoadCopyRejectsIncompleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copy.yaml")
	raw := []byte(`
default_language: en
packages:
  - name: Solo
    price: "$10"
languages:
  en:
    fallback: "hi"
    cta:
      NEW: "What do you do?"
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadCopy(path); err == nil {
		t.Fatalf("expected missing CTAs to be rejected")
	}
}

func TestFollowUpTemplate(t *testing.T) {
	got := DefaultCopy().FollowUp("en", "how much is it")
	if got != `Just checking in about "how much is it". Happy to help you pick the right option whenever you are ready.` {
		t.Fatalf("unexpected follow-up text %q", got)
	}
}

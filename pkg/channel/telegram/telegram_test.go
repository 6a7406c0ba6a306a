package telegram

import (
	"strings"
	"testing"

	"aria/pkg/config"
)

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	if !adapter.senderAllowed("1") {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed("2") {
		t.Fatal("expected sender 2 to be denied")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
}

func TestSourceRoundTrip(t *testing.T) {
	source := sourceFor(42)
	if source != "telegram:42" {
		t.Fatalf("sourceFor = %q, want %q", source, "telegram:42")
	}

	chatID, ok := chatIDFromSource(source)
	if !ok || chatID != 42 {
		t.Fatalf("chatIDFromSource(%q) = %d, %v; want 42, true", source, chatID, ok)
	}
}

func TestChatIDFromForeignSource(t *testing.T) {
	if _, ok := chatIDFromSource("console"); ok {
		t.Fatal("console source should not map to a chat")
	}
	if _, ok := chatIDFromSource("telegram:not-a-number"); ok {
		t.Fatal("malformed chat id should not parse")
	}
}

func TestPreviewText(t *testing.T) {
	if got := previewText(" hello "); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("previewText long len = %d, want %d", len(got), messagePreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want ellipsis suffix", got)
	}
}

func TestNewAdapterRequiresToken(t *testing.T) {
	if _, err := NewAdapter(config.TelegramConfig{}, nil, nil); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := NewAdapter(config.TelegramConfig{Token: "123:abc"}, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

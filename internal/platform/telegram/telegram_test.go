package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"mxnotify/internal/platform"
)

func TestTruncMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"within limit", "hello", 10, "hello"},
		{"exactly at limit", "hello", 5, "hello"},
		{"ascii over limit", "hello world", 5, "hell…"},
		{"zero limit", "hello", 0, ""},
		{"single rune limit", "hello", 1, "…"},
		{"multibyte within limit", "日本語", 3, "日本語"},
		{"multibyte over limit", "日本語のテキスト", 4, "日本語…"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := truncMessage(tc.text, tc.limit)
			if got != tc.want {
				t.Fatalf("truncMessage(%q, %d) = %q, want %q", tc.text, tc.limit, got, tc.want)
			}
		})
	}
}

func TestTruncMessageRuneBoundary(t *testing.T) {
	t.Parallel()

	// Multibyte runes straddling the limit must never be split: the result
	// has to stay valid UTF-8 and count runes, not bytes, against the limit.
	text := strings.Repeat("a", telegramTextLimit-1) + strings.Repeat("語", 8)
	got := truncMessage(text, telegramTextLimit)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != telegramTextLimit {
		t.Fatalf("rune count = %d, want %d", n, telegramTextLimit)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("truncated text missing ellipsis: ...%q", got[len(got)-8:])
	}

	// A message of exactly the limit in runes but far more in bytes passes
	// untouched.
	exact := strings.Repeat("語", telegramTextLimit)
	if got := truncMessage(exact, telegramTextLimit); got != exact {
		t.Fatalf("exact-limit multibyte text was truncated")
	}
}

func TestParseHandle(t *testing.T) {
	t.Parallel()

	chatID, msgID, err := parseHandle("-100123456:789")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if chatID != -100123456 || msgID != 789 {
		t.Fatalf("parsed %d:%d", chatID, msgID)
	}

	for _, h := range []string{"", "123", ":5", "123:", "x:5", "123:y"} {
		if _, _, err := parseHandle(platform.Handle(h)); err == nil {
			t.Errorf("parseHandle(%q) accepted", h)
		}
	}
}

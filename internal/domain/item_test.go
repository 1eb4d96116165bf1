package domain

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestTruncateMessage(t *testing.T) {
	long := strings.Repeat("é", MaxErrorMessageLen+10)
	if got := TruncateMessage(long); utf8.RuneCountInString(got) != MaxErrorMessageLen {
		t.Errorf("runes = %d, want %d", utf8.RuneCountInString(got), MaxErrorMessageLen)
	}

	// Байтовая обрезка посреди руны.
	split := strings.Repeat("a", 199) + "é"[:1]
	got := TruncateMessage(split)
	if !utf8.ValidString(got) {
		t.Errorf("invalid UTF-8 kept: %q", got)
	}
	if !strings.HasPrefix(got, strings.Repeat("a", 199)) {
		t.Errorf("prefix lost: %q", got)
	}

	if got := TruncateMessage("bad\x00body"); got != "badbody" {
		t.Errorf("NUL kept: %q", got)
	}
	if got := TruncateMessage("short"); got != "short" {
		t.Errorf("TruncateMessage = %q", got)
	}
}

func TestItem_MarkError_SanitizesMessage(t *testing.T) {
	item := &Item{Status: ItemStatusPending}
	at := time.Now()

	item.MarkError(ErrorTagPermanent, "upstream \xc3", at)

	if item.ErrorMessage == nil || !utf8.ValidString(*item.ErrorMessage) {
		t.Fatalf("error message not sanitized: %v", item.ErrorMessage)
	}
	if item.Status != ItemStatusError || item.Attempts != 1 || !item.HasTag(ErrorTagPermanent) {
		t.Errorf("unexpected item: %+v", item)
	}
}

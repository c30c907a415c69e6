package utils

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestTruncate_RuneBoundaries(t *testing.T) {
	if got := Truncate("日本語のテキスト", 3); got != "日本語..." {
		t.Errorf("got %q, want %q", got, "日本語...")
	}
	if got := Truncate("héllo wörld", 6); got != "héllo ..." {
		t.Errorf("got %q, want %q", got, "héllo ...")
	}
	// A cut must never leave a partial multi-byte sequence behind.
	for maxLen := 1; maxLen < 10; maxLen++ {
		if got := Truncate("aé漢🙂z", maxLen); !utf8.ValidString(got) {
			t.Errorf("maxLen %d produced invalid UTF-8: %q", maxLen, got)
		}
	}
}

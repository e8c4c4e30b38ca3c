package logx

import (
	"strings"
	"testing"
)

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","comp":"gate","err":"timeout","time":"x","message":"condition lookup failed"}`)
	got := formatChatLine(line)
	want := "**[WARN]** condition lookup failed<br>- comp=gate<br>- err=timeout"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}
}

func TestFormatChatLineNotJSON(t *testing.T) {
	t.Parallel()
	if got := formatChatLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("formatChatLine = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 50)
	if got := truncate(s, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 20); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}

package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	logx "notirelay/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		in    string
		limit int
		want  int
	}{
		{name: "short", in: "hello", limit: 10, want: 1},
		{name: "exact", in: strings.Repeat("a", 10), limit: 10, want: 1},
		{name: "hard split", in: strings.Repeat("a", 25), limit: 10, want: 3},
		{name: "newline preferred", in: strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6), limit: 10, want: 2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := splitText(tt.in, tt.limit)
			if len(got) != tt.want {
				t.Fatalf("chunks = %d (%q), want %d", len(got), got, tt.want)
			}
			for _, c := range got {
				if utf8.RuneCountInString(c) > tt.limit {
					t.Fatalf("chunk too long: %q", c)
				}
			}
		})
	}
}

func TestSplitTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("x", 8) + "<b>bold</b>"
	got := splitText(in, 10)
	if got[0] != strings.Repeat("x", 8) {
		t.Fatalf("first chunk = %q", got[0])
	}
	if !strings.HasPrefix(got[1], "<b>") {
		t.Fatalf("second chunk = %q", got[1])
	}
}

func TestSendTextUsesHTMLParseMode(t *testing.T) {
	t.Parallel()
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`)
	}))
	defer srv.Close()

	s, err := New(Config{Token: "tok", ChatID: -100, URL: srv.URL}, srv.Client(), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, err := s.SendText(context.Background(), "**Door**<br>open")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if id != "42" {
		t.Fatalf("id = %q", id)
	}
	if gotPath != "/bottok/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["parse_mode"] != "HTML" || gotBody["text"] != "<b>Door</b>\nopen" {
		t.Fatalf("body = %v", gotBody)
	}
}

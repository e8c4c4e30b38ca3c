package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"notirelay/internal/transport"
	logx "notirelay/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{Server: srv.URL + "/", Token: "secret", Room: "!room:example.org"}, srv.Client(), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.newTxnID = func() string { return "txn1" }
	return c
}

func TestSendText(t *testing.T) {
	t.Parallel()
	var got textEvent
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		if want := "/_matrix/client/v3/rooms/!room:example.org/send/m.room.message/txn1"; r.URL.Path != want {
			t.Errorf("path = %s, want %s", r.URL.Path, want)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"event_id":"$ev1"}`)
	})

	id, err := c.SendText(context.Background(), "**Heating on**<br>18C")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if id != "$ev1" {
		t.Fatalf("event id = %q", id)
	}
	want := textEvent{
		MsgType:       "m.text",
		Body:          "Heating on\n18C",
		Format:        "org.matrix.custom.html",
		FormattedBody: "<strong>Heating on</strong><br>18C",
	}
	if got != want {
		t.Fatalf("event = %+v, want %+v", got, want)
	}
}

func TestSendTextRejectsEmpty(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	if _, err := c.SendText(context.Background(), "  "); !errors.Is(err, transport.ErrEmptyMessage) {
		t.Fatalf("err = %v", err)
	}
}

func TestSendImageUploadsThenPosts(t *testing.T) {
	t.Parallel()
	var ev imageEvent
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/_matrix/media/v3/upload":
			if r.URL.Query().Get("filename") != "cat.png" {
				t.Errorf("filename = %q", r.URL.Query().Get("filename"))
			}
			if r.Header.Get("Content-Type") != "image/png" {
				t.Errorf("content type = %q", r.Header.Get("Content-Type"))
			}
			_, _ = io.WriteString(w, `{"content_uri":"mxc://example.org/abc"}`)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/_matrix/client/v3/rooms/"):
			_ = json.NewDecoder(r.Body).Decode(&ev)
			_, _ = io.WriteString(w, `{"event_id":"$img"}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	id, err := c.SendImage(context.Background(), transport.Image{Data: []byte("png!"), MimeType: "image/png", Filename: "cat.png"})
	if err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if id != "$img" {
		t.Fatalf("event id = %q", id)
	}
	if ev.MsgType != "m.image" || ev.URL != "mxc://example.org/abc" || ev.Info.Size != 4 || ev.Info.MimeType != "image/png" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestErrorResponse(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"errcode":"M_FORBIDDEN","error":"not in room"}`)
	})
	_, err := c.SendText(context.Background(), "hi")
	var me *Error
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if me.Status != http.StatusForbidden || me.Code != "M_FORBIDDEN" {
		t.Fatalf("unexpected error %+v", me)
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	tests := []Config{
		{Token: "t", Room: "!r"},
		{Server: "https://m", Room: "!r"},
		{Server: "https://m", Token: "t"},
		{Server: "not a url", Token: "t", Room: "!r"},
	}
	for _, cfg := range tests {
		if _, err := New(cfg, nil, logx.Nop()); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

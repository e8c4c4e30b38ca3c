package systemd

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	logx "notirelay/pkg/logx"
)

func TestNotifyWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	n := NewNotifier(logx.Nop())
	if n.Ready() {
		t.Fatal("Ready reported delivery without NOTIFY_SOCKET")
	}
}

func TestNotifySendsState(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram unavailable: %v", err)
	}
	defer conn.Close()
	t.Setenv("NOTIFY_SOCKET", sock)

	n := NewNotifier(logx.Nop())
	for _, tc := range []struct {
		send func() bool
		want string
	}{
		{n.Ready, "READY=1"},
		{func() bool { return n.Status("flushing") }, "STATUS=flushing"},
		{n.Stopping, "STOPPING=1"},
	} {
		if !tc.send() {
			t.Fatalf("%s not delivered", tc.want)
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 256)
		nr, err := conn.Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		if got := string(buf[:nr]); got != tc.want {
			t.Fatalf("got %q, want %q", got, tc.want)
		}
	}
}

func TestRunWatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	n := NewNotifier(logx.Nop())
	done := make(chan error, 1)
	go func() { done <- n.RunWatchdog(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunWatchdog blocked with watchdog disabled")
	}
}

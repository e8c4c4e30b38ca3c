package transport

import (
	"context"
	"errors"
)

var ErrEmptyMessage = errors.New("empty message")

// Image is a binary attachment ready for upload.
type Image struct {
	Data     []byte
	MimeType string
	Filename string
}

// Sender delivers messages to the configured chat room.
//
// Text is relay markup: "**bold**" spans and "<br>" line breaks. Each
// transport maps that onto its own wire format (see markup.go).
// The returned string is the transport's event/message id.
type Sender interface {
	SendText(ctx context.Context, markup string) (string, error)
	SendImage(ctx context.Context, img Image) (string, error)
}

// Named is implemented by senders that report a driver name for logs.
type Named interface {
	Name() string
}

// NameOf returns the sender's driver name, or "unknown".
func NameOf(s Sender) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"notirelay/internal/transport"
)

// MaxImageBytes caps a fetched image.
const MaxImageBytes = 20 << 20

var (
	ErrImageFetch   = errors.New("image fetch failed")
	ErrImageTooBig  = errors.New("image too large")
	ErrInvalidImage = errors.New("invalid image url")
)

// FetchImage downloads url into memory. The mime type comes from the
// response Content-Type, else from the URL extension; the filename is the
// last path segment, or "image".
func FetchImage(ctx context.Context, client *http.Client, rawURL string) (transport.Image, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return transport.Image{}, fmt.Errorf("%w: %q", ErrInvalidImage, rawURL)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return transport.Image{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return transport.Image{}, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return transport.Image{}, fmt.Errorf("%w: http=%d", ErrImageFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return transport.Image{}, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	if len(data) > MaxImageBytes {
		return transport.Image{}, ErrImageTooBig
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "image"
	}
	mt := resp.Header.Get("Content-Type")
	if mt == "" {
		mt = mime.TypeByExtension(path.Ext(name))
	}
	return transport.Image{Data: data, MimeType: mt, Filename: name}, nil
}

package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"notirelay/internal/transport"
	logx "notirelay/pkg/logx"
)

const (
	msgTypeText  = "m.text"
	msgTypeImage = "m.image"
	formatHTML   = "org.matrix.custom.html"
)

type Config struct {
	Server string // homeserver base URL, e.g. https://matrix.example.org
	User   string // informational; access tokens identify the user
	Token  string
	Room   string // room id (!abc:server) or alias
}

// Client sends events to one Matrix room through the client-server API.
type Client struct {
	cfg    Config
	server string
	http   *http.Client
	log  logx.Logger

	// newTxnID is swapped in tests.
	newTxnID func() string
}

// Error is a non-2xx homeserver response.
type Error struct {
	Status  int
	Code    string `json:"errcode"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("matrix: %s: %s (http=%d)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("matrix: http=%d", e.Status)
}

func New(cfg Config, client *http.Client, log logx.Logger) (*Client, error) {
	server := strings.TrimRight(strings.TrimSpace(cfg.Server), "/")
	if server == "" {
		return nil, errors.New("matrix: server is empty")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("matrix: token is empty")
	}
	if strings.TrimSpace(cfg.Room) == "" {
		return nil, errors.New("matrix: room is empty")
	}
	base, err := url.Parse(server)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("matrix: invalid server url %q", cfg.Server)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		cfg:      cfg,
		server:   strings.TrimRight(base.String(), "/"),
		http:     client,
		log:      log,
		newTxnID: uuid.NewString,
	}, nil
}

func (c *Client) Name() string { return "matrix" }

type textEvent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

type imageInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int    `json:"size"`
}

type imageEvent struct {
	MsgType string    `json:"msgtype"`
	Body    string    `json:"body"`
	URL     string    `json:"url"`
	Info    imageInfo `json:"info"`
}

func (c *Client) SendText(ctx context.Context, markup string) (string, error) {
	if strings.TrimSpace(markup) == "" {
		return "", transport.ErrEmptyMessage
	}
	return c.sendEvent(ctx, textEvent{
		MsgType:       msgTypeText,
		Body:          transport.PlainText(markup),
		Format:        formatHTML,
		FormattedBody: transport.HTML(markup),
	})
}

// SendImage uploads the image to the media repository, then posts an m.image
// event referencing it.
func (c *Client) SendImage(ctx context.Context, img transport.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", transport.ErrEmptyMessage
	}
	name := img.Filename
	if name == "" {
		name = "image"
	}
	mime := img.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}

	u := c.endpoint("/_matrix/media/v3/upload?filename=" + url.QueryEscape(name))

	var up struct {
		ContentURI string `json:"content_uri"`
	}
	if err := c.do(ctx, http.MethodPost, u, mime, bytes.NewReader(img.Data), &up); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if up.ContentURI == "" {
		return "", errors.New("matrix: upload returned no content_uri")
	}

	return c.sendEvent(ctx, imageEvent{
		MsgType: msgTypeImage,
		Body:    name,
		URL:     up.ContentURI,
		Info:    imageInfo{MimeType: mime, Size: len(img.Data)},
	})
}

func (c *Client) sendEvent(ctx context.Context, content any) (string, error) {
	b, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(c.cfg.Room) +
		"/send/m.room.message/" + url.PathEscape(c.newTxnID())

	var out struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, http.MethodPut, c.endpoint(path), "application/json", bytes.NewReader(b), &out); err != nil {
		return "", err
	}
	c.log.Debug("matrix event sent", logx.String("event_id", out.EventID))
	return out.EventID, nil
}

// endpoint joins the homeserver base with an already escaped path.
func (c *Client) endpoint(path string) string {
	return c.server + path
}

func (c *Client) do(ctx context.Context, method, u string, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.Token))
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		e := &Error{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, e)
		return e
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("matrix: decode response: %w", err)
	}
	return nil
}

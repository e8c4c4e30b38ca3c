package telegram

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"notirelay/internal/transport"
	logx "notirelay/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int

	// URL overrides the Bot API endpoint (tests, local bot api servers).
	URL string
}

// Sender posts to a single Telegram chat. The bot runs offline: it never
// polls for updates, it only calls send methods.
type Sender struct {
	bot      *tele.Bot
	chat     *tele.Chat
	threadID int
	log      logx.Logger
}

func New(cfg Config, client *http.Client, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     cfg.URL,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Sender{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, threadID: cfg.ThreadID, log: log}, nil
}

func (s *Sender) Name() string { return "telegram" }

// SendText renders markup to Telegram HTML and sends it, split into chunks
// when it exceeds the message limit. The id of the first chunk is returned.
func (s *Sender) SendText(ctx context.Context, markup string) (string, error) {
	if strings.TrimSpace(markup) == "" {
		return "", transport.ErrEmptyMessage
	}
	chunks := splitText(transport.TelegramHTML(markup), textLimit)

	first := ""
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := s.bot.Send(s.chat, chunk, s.options())
		if err != nil {
			return first, err
		}
		if first == "" {
			first = strconv.Itoa(msg.ID)
		}
	}
	if len(chunks) > 1 {
		s.log.Debug("telegram text split", logx.Int("chunks", len(chunks)))
	}
	return first, nil
}

func (s *Sender) SendImage(ctx context.Context, img transport.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", transport.ErrEmptyMessage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(img.Data))}
	msg, err := s.bot.Send(s.chat, photo, s.options())
	if err != nil {
		return "", err
	}
	return strconv.Itoa(msg.ID), nil
}

func (s *Sender) options() *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              s.threadID,
	}
}

// splitText cuts s into chunks of at most limit runes. It prefers newline
// boundaries and avoids cutting inside an HTML tag.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// avoid tiny chunks
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

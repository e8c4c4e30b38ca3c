package condition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrMalformedState = errors.New("malformed state response")
	ErrProviderStatus = errors.New("unexpected provider status")
)

// HomeAssistant reads entity states from the Home Assistant REST API.
type HomeAssistant struct {
	token string
	http  *http.Client
}

func NewHomeAssistant(token string, client *http.Client) *HomeAssistant {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HomeAssistant{token: strings.TrimSpace(token), http: client}
}

// State GETs url and returns its "state" field.
func (h *HomeAssistant) State(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("%w: http=%d", ErrProviderStatus, resp.StatusCode)
	}

	var out struct {
		State *string `json:"state"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if out.State == nil {
		return "", fmt.Errorf("%w: missing state field", ErrMalformedState)
	}
	return *out.State, nil
}

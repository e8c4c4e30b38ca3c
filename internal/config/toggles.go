package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Toggle binds a routing key to the URL of its external condition.
// An empty URL means "no condition": messages send immediately.
type Toggle struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// Toggles is an ordered list; the first prefix match wins.
type Toggles []Toggle

// Keys returns the toggle keys in order.
func (t Toggles) Keys() []string {
	out := make([]string, 0, len(t))
	for _, tg := range t {
		out = append(out, tg.Key)
	}
	return out
}

func (t *Toggles) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = nil
		return nil
	}

	switch b[0] {
	case '[':
		type rawToggle struct {
			Key string  `json:"key"`
			URL *string `json:"url"`
		}
		var raw []rawToggle
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("toggles: %w", err)
		}
		out := make(Toggles, 0, len(raw))
		for i, r := range raw {
			if strings.TrimSpace(r.Key) == "" {
				return fmt.Errorf("toggles[%d]: key required", i)
			}
			tg := Toggle{Key: r.Key}
			if r.URL != nil {
				tg.URL = strings.TrimSpace(*r.URL)
			}
			out = append(out, tg)
		}
		*t = out
		return nil

	case '{':
		out, err := decodeToggleObject(b)
		if err != nil {
			return fmt.Errorf("toggles: %w", err)
		}
		*t = out
		return nil
	}
	return fmt.Errorf("toggles: expected array or object")
}

// decodeToggleObject reads {"key": "url" | null, ...} in document order, so
// overlapping prefixes resolve the same way they read in the file.
func decodeToggleObject(b []byte) (Toggles, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var out Toggles
	seen := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var u *string
		if err := dec.Decode(&u); err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		tg := Toggle{Key: key}
		if u != nil {
			tg.URL = strings.TrimSpace(*u)
		}
		// a repeated key keeps its first position and the last value
		if i, dup := seen[key]; dup {
			out[i] = tg
			continue
		}
		seen[key] = len(out)
		out = append(out, tg)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after toggles object")
	}
	return out, nil
}

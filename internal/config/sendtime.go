package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// SendTime is a daily wall-clock time.
type SendTime struct {
	Hour   int
	Minute int
}

func (t SendTime) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t SendTime) Valid() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("invalid hour %d", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("invalid minute %d", t.Minute)
	}
	return nil
}

func (t SendTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts "HH:MM" or [h, m].
func (t *SendTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseSendTime(s)
		if err != nil {
			return err
		}
		*t = v
		return nil
	}
	var pair []int
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("send time: expected \"HH:MM\" or [hour, minute]")
	}
	if len(pair) != 2 {
		return fmt.Errorf("send time: expected [hour, minute], got %d values", len(pair))
	}
	v := SendTime{Hour: pair[0], Minute: pair[1]}
	if err := v.Valid(); err != nil {
		return fmt.Errorf("send time %v: %w", pair, err)
	}
	*t = v
	return nil
}

type SendTimes []SendTime

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseSendTime parses "HH:MM" (24h clock).
func ParseSendTime(raw string) (SendTime, error) {
	h, m, err := parseHHMM(raw)
	if err != nil {
		return SendTime{}, err
	}
	return SendTime{Hour: h, Minute: m}, nil
}

func parseHHMM(v string) (int, int, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if err := (SendTime{Hour: hh, Minute: mm}).Valid(); err != nil {
		return 0, 0, fmt.Errorf("%q: %w", v, err)
	}
	return hh, mm, nil
}

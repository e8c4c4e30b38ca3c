package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const legacySep = "<br>"

// UnmarshalJSON accepts the object form and the older pre-rendered string
// form "<timestamp><br><title><br><body>".
func (r *Record) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = parseLegacy(s)
		return nil
	}
	type plain Record
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	*r = Record(p)
	return nil
}

func parseLegacy(s string) Record {
	parts := strings.SplitN(s, legacySep, 3)
	if len(parts) != 3 {
		// not ours; keep the text as it was written
		return Record{Body: s}
	}
	return Record{Timestamp: parts[0], Title: parts[1], Body: parts[2]}
}

package collate

import (
	"time"

	"notirelay/internal/storage"
)

// TimestampLayout renders entry times as day.month.year hour:minute.
const TimestampLayout = "02.01.2006 15:04"

// Entry is one withheld message. Entries are immutable once appended.
type Entry struct {
	Timestamp string
	Title     string
	Body      string
}

// NewEntry stamps a message with t in loc.
func NewEntry(t time.Time, loc *time.Location, title, body string) Entry {
	if loc != nil {
		t = t.In(loc)
	}
	return Entry{Timestamp: t.Format(TimestampLayout), Title: title, Body: body}
}

// Render is the entry as it appears inside a collated message. An entry
// with neither timestamp nor title is rendered as its bare body.
func (e Entry) Render() string {
	if e.Timestamp == "" && e.Title == "" {
		return e.Body
	}
	return e.Timestamp + "<br>" + e.Title + "<br>" + e.Body
}

// Topic is a routing key with its pending entries.
type Topic struct {
	Key     string
	Entries []Entry
}

func toRecords(es []Entry) []storage.Record {
	out := make([]storage.Record, len(es))
	for i, e := range es {
		out[i] = storage.Record{Timestamp: e.Timestamp, Title: e.Title, Body: e.Body}
	}
	return out
}

func fromRecords(rs []storage.Record) []Entry {
	out := make([]Entry, len(rs))
	for i, r := range rs {
		out[i] = Entry{Timestamp: r.Timestamp, Title: r.Title, Body: r.Body}
	}
	return out
}

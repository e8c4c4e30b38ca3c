package relay

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"notirelay/internal/collate"
)

const (
	entrySeparator = "<br>-----<br>"
	emptyNotice    = "**Collated Messages:**<br>No new messages"
)

// formatImmediate renders a titled message for direct delivery.
func formatImmediate(title, body string) string {
	return "**" + title + "**<br>" + body
}

// formatCollated renders one topic's pending entries as a single message.
func formatCollated(t collate.Topic) string {
	parts := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		parts[i] = e.Render()
	}
	return "**" + topicTitle(t.Key) + " (collated)**<br>" + strings.Join(parts, entrySeparator)
}

// topicTitle title-cases a routing key: "heating" -> "Heating".
func topicTitle(key string) string {
	return cases.Title(language.Und).String(key)
}

package transport

import (
	"html"
	"regexp"
	"strings"
)

// Relay markup is intentionally tiny: "**x**" for bold and "<br>" for line
// breaks. Everything else is passed through as text.

var reBold = regexp.MustCompile(`\*\*(.+?)\*\*`)

const lineBreak = "<br>"

// PlainText strips markup for clients that only read the plain body.
func PlainText(markup string) string {
	s := reBold.ReplaceAllString(markup, "$1")
	return strings.ReplaceAll(s, lineBreak, "\n")
}

// HTML renders markup for Matrix formatted_body.
// Text outside the markup tokens is escaped.
func HTML(markup string) string {
	return renderHTML(markup, "strong", lineBreak)
}

// TelegramHTML renders markup for Telegram's HTML parse mode, which has no
// <br> support.
func TelegramHTML(markup string) string {
	return renderHTML(markup, "b", "\n")
}

func renderHTML(markup, boldTag, br string) string {
	lines := strings.Split(markup, lineBreak)
	for i, ln := range lines {
		var b strings.Builder
		last := 0
		for _, m := range reBold.FindAllStringSubmatchIndex(ln, -1) {
			b.WriteString(html.EscapeString(ln[last:m[0]]))
			b.WriteString("<" + boldTag + ">")
			b.WriteString(html.EscapeString(ln[m[2]:m[3]]))
			b.WriteString("</" + boldTag + ">")
			last = m[1]
		}
		b.WriteString(html.EscapeString(ln[last:]))
		lines[i] = b.String()
	}
	return strings.Join(lines, br)
}

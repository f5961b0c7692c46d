// Package notify turns live status transitions into chat messages and
// delivers them to every watcher of the account.
package notify

import (
	"strings"
	"time"

	"github.com/onnwee/live-signal/monitor"
)

// Composer renders transition messages in Telegram Markdown.
type Composer struct {
	// SourceOffset and TargetOffset are UTC offsets in hours of the listing's
	// start times and of the recipients.
	SourceOffset int
	TargetOffset int
	// PlayerURL, when set, links the title; the account id is appended.
	PlayerURL string
}

// DefaultComposer converts KST start times to CST.
func DefaultComposer() Composer { return Composer{SourceOffset: 9, TargetOffset: 8} }

var titleStripper = strings.NewReplacer("[", "", "]", "", ".", "", "-", "", "_", "", "(", "", ")", "")

// SanitizeTitle drops punctuation that breaks Markdown links.
func SanitizeTitle(s string) string { return titleStripper.Replace(s) }

var categoryLabels = []struct{ mark, label string }{
	{"🎥", "🎥Replay"},
	{"💰", "💰Fan room"},
	{"🔒", "🔒Password"},
	{"🔞", "🔞19+"},
}

// TypeLabel lists the room categories encoded in a composed title.
func TypeLabel(title string) string {
	var b strings.Builder
	for _, c := range categoryLabels {
		if strings.Contains(title, c.mark) {
			b.WriteString(c.label)
		}
	}
	return b.String()
}

var startLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
}

// LocalStart converts a start-time token to the recipient's offset. Tokens
// that do not parse are returned unchanged.
func (c Composer) LocalStart(token string) string {
	src := time.FixedZone("source", c.SourceOffset*3600)
	dst := time.FixedZone("target", c.TargetOffset*3600)
	if t, err := time.Parse(time.RFC3339, token); err == nil {
		return t.In(dst).Format("2006-01-02 15:04:05")
	}
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, token, src); err == nil {
			return t.In(dst).Format("2006-01-02 15:04:05")
		}
	}
	return token
}

// code strips backticks so names cannot close an inline code span.
func code(s string) string { return "`" + strings.ReplaceAll(s, "`", "'") + "`" }

// Compose renders the message for one transition.
func (c Composer) Compose(t monitor.Transition) string {
	e := t.Entity
	who := code(e.DisplayName) + "(" + code(e.Nickname) + ")\n"
	var b strings.Builder
	b.WriteString(code(e.ID))
	if !t.WentLive() {
		b.WriteString(" went offline.\n\n")
		b.WriteString("🔴  " + who + "~")
		return b.String()
	}
	b.WriteString(" is live! " + TypeLabel(e.Title) + "\n")
	b.WriteString("Started: " + c.LocalStart(t.To.Since) + "\n\n")
	b.WriteString("🟢  " + who)
	title := SanitizeTitle(e.Title)
	if c.PlayerURL != "" {
		b.WriteString(" [" + title + "](" + c.PlayerURL + e.ID + ")\n")
	} else {
		b.WriteString(" " + title + "\n")
	}
	b.WriteString("~")
	return b.String()
}

package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onnwee/live-signal/monitor"
)

func TestComposeOnline(t *testing.T) {
	c := DefaultComposer()
	c.PlayerURL = "https://www.pandalive.co.kr/play/"
	tr := monitor.Transition{
		Entity: monitor.Entity{ID: "A123", DisplayName: "Alpha", Nickname: "al", Title: "🎥|my [first] stream."},
		From:   monitor.Offline(),
		To:     monitor.Online("2024-01-01 10:00:00"),
	}
	want := "`A123` is live! 🎥Replay\n" +
		"Started: 2024-01-01 09:00:00\n\n" +
		"🟢  `Alpha`(`al`)\n" +
		" [🎥|my first stream](https://www.pandalive.co.kr/play/A123)\n" +
		"~"
	assert.Equal(t, want, c.Compose(tr))
}

func TestComposeOnlineWithoutPlayerURL(t *testing.T) {
	tr := monitor.Transition{
		Entity: monitor.Entity{ID: "A123", DisplayName: "Alpha", Nickname: "al", Title: "hello"},
		To:     monitor.Online("not a time"),
	}
	got := DefaultComposer().Compose(tr)
	assert.Contains(t, got, "Started: not a time\n")
	assert.Contains(t, got, "\n hello\n~")
	assert.NotContains(t, got, "](")
}

func TestComposeOffline(t *testing.T) {
	tr := monitor.Transition{
		Entity: monitor.Entity{ID: "B456", DisplayName: "Be`ta", Nickname: "b"},
		From:   monitor.Online("2024-01-01 09:00:00"),
		To:     monitor.Offline(),
	}
	assert.Equal(t, "`B456` went offline.\n\n🔴  `Be'ta`(`b`)\n~", DefaultComposer().Compose(tr))
}

func TestTypeLabel(t *testing.T) {
	assert.Equal(t, "", TypeLabel("plain"))
	assert.Equal(t, "🎥Replay💰Fan room🔒Password🔞19+", TypeLabel("🎥|💰|🔒|🔞|x"))
	assert.Equal(t, "🔞19+", TypeLabel("🔞|x"))
}

func TestSanitizeTitle(t *testing.T) {
	assert.Equal(t, "a b c", SanitizeTitle("[a] (b) c."))
	assert.Equal(t, "snakecase", SanitizeTitle("snake_case"))
	assert.Equal(t, "x  y", SanitizeTitle("x - y"))
}

func TestLocalStart(t *testing.T) {
	c := DefaultComposer()
	tests := []struct {
		in, want string
	}{
		{"2024-01-01 10:00:00", "2024-01-01 09:00:00"},
		{"2024-01-01T10:00:00", "2024-01-01 09:00:00"},
		{"2024/01/01 00:30:00", "2023-12-31 23:30:00"},
		{"2024-01-01T10:00:00+09:00", "2024-01-01 09:00:00"},
		{"2024-01-01T01:00:00Z", "2024-01-01 09:00:00"},
		{"garbage", "garbage"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.LocalStart(tt.in), tt.in)
	}

	same := Composer{SourceOffset: 0, TargetOffset: 0}
	assert.Equal(t, "2024-01-01 10:00:00", same.LocalStart("2024-01-01 10:00:00"))
}

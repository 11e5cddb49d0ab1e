package lobby

import (
	"embed"
	"html/template"

	"github.com/tmtu/watchroom/internal/v1/media"
	"github.com/tmtu/watchroom/internal/v1/protocol"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// pages holds the parsed lobby templates. Execution on a parsed template is
// concurrency safe.
var pages = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// avatarOption is one entry of the index page's avatar picker.
type avatarOption struct {
	ID      protocol.BadgeID
	Asset   string
	Tooltip string
	Checked bool
}

// avatarOptions lists the person sprites of the badge catalog. Medals,
// ticks and control glyphs are status badges, not avatars.
func avatarOptions() []avatarOption {
	ids := []protocol.BadgeID{
		protocol.BadgeUserSuit,
		protocol.BadgeUserGreen,
		protocol.BadgeUserRed,
		protocol.BadgeUserOrange,
		protocol.BadgeUserGray,
		protocol.BadgeUserFemale,
	}
	opts := make([]avatarOption, 0, len(ids))
	for i, id := range ids {
		b := protocol.BadgeCatalog[id]
		opts = append(opts, avatarOption{
			ID:      id,
			Asset:   b.Asset,
			Tooltip: b.Tooltip,
			Checked: i == 0,
		})
	}
	return opts
}

// badgeEntry mirrors one catalog badge for the client script, which indexes
// BADGE_DATA by badge id to resolve sprite names and tooltips.
type badgeEntry struct {
	Name    string `json:"name"`
	Tooltip string `json:"tooltip"`
}

func badgeData() []badgeEntry {
	out := make([]badgeEntry, len(protocol.BadgeCatalog))
	for i, b := range protocol.BadgeCatalog {
		out[i] = badgeEntry{Name: b.Asset, Tooltip: b.Tooltip}
	}
	return out
}

// roomRow is one line of the index page's open-room listing.
type roomRow struct {
	Code    string
	Name    string
	Viewers int
}

type indexPage struct {
	Avatars []avatarOption
	Rooms   []roomRow
	Prefill string
}

type createPage struct {
	Streams []*media.Stream
}

// roomPage bootstraps the player: the script globals the client reads plus
// the stream metadata shown in the sidebar.
type roomPage struct {
	Code           string
	Nickname       string
	Avatar         protocol.BadgeID
	Badges         []protocol.BadgeID
	BadgeData      []badgeEntry
	StreamName     string
	StreamTitle    string
	StreamDuration string
	IMDB           string
	Viewers        int
}

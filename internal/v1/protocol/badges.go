package protocol

// BadgeID indexes the static badge catalog. Deployed clients ship the same
// catalog, so values are wire-compatible only while the order below holds;
// new badges append at the end.
type BadgeID uint32

const (
	BadgeUserSuit BadgeID = iota
	BadgeUserGreen
	BadgeUserRed
	BadgeUserOrange
	BadgeTick
	BadgeCross
	BadgeHourglass
	BadgeRuby
	BadgeRosette
	BadgeRainbow
	BadgeMedalBronze
	BadgeMedalSilver
	BadgeMedalGold
	BadgeControlPlay
	BadgeControlPlayBlue
	BadgeControlPause
	BadgeControlPauseBlue
	BadgeUserGray
	BadgeUserFemale
)

// Badge is one catalog entry: the asset name clients resolve to an image and
// the hover text they show for it.
type Badge struct {
	Asset   string
	Tooltip string
}

// BadgeCatalog is indexed by BadgeID.
var BadgeCatalog = [...]Badge{
	BadgeUserSuit:         {"user_suit", "Person in suit"},
	BadgeUserGreen:        {"user_green", "Person in green"},
	BadgeUserRed:          {"user_red", "Person in red"},
	BadgeUserOrange:       {"user_orange", "Person in orange"},
	BadgeTick:             {"tick", "User is ready"},
	BadgeCross:            {"cross", "User is not ready"},
	BadgeHourglass:        {"hourglass", "User is loading"},
	BadgeRuby:             {"ruby", "This person is a gem"},
	BadgeRosette:          {"rosette", "This person graduated from grade school"},
	BadgeRainbow:          {"rainbow", "This person loves colors"},
	BadgeMedalBronze:      {"medal_bronze_1", "This person came in 3rd place"},
	BadgeMedalSilver:      {"medal_silver_1", "This person came in 2nd place"},
	BadgeMedalGold:        {"medal_gold_1", "This person came in 1st place"},
	BadgeControlPlay:      {"control_play", "User is playing"},
	BadgeControlPlayBlue:  {"control_play_blue", "User is playing"},
	BadgeControlPause:     {"control_pause", "User is paused"},
	BadgeControlPauseBlue: {"control_pause_blue", "User is paused"},
	BadgeUserGray:         {"user_gray", "Person"},
	BadgeUserFemale:       {"user_female", "Person"},
}

// RosetteName is the display name that always earns BadgeRosette.
const RosetteName = "tmtu"

// AwardBadges computes the badge set for a participant at creation time.
// The first three user ids of a room take the medal podium, and the
// reserved display name gets a rosette on top of whatever it earned. The
// result is never nil; clients iterate it and a JSON null would break them.
func AwardBadges(id UserID, name string) []BadgeID {
	badges := []BadgeID{}
	switch id {
	case 0:
		badges = append(badges, BadgeMedalGold)
	case 1:
		badges = append(badges, BadgeMedalSilver)
	case 2:
		badges = append(badges, BadgeMedalBronze)
	}
	if name == RosetteName {
		badges = append(badges, BadgeRosette)
	}
	return badges
}

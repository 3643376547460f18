package schema

// UserStatsTable represents the 'users.stats' table: the gamification and
// trust row for a user, split out from 'users.account' because it is
// written by the Progress Engine, the Trust/Anti-Abuse layer, and the feed
// watermark endpoint rather than by account-profile edits.
type UserStatsTable struct {
	Table          string
	UserID         string
	XP             string
	Level          string
	StreakDays     string
	LongestStreak  string
	LastReadAt     string
	ChaptersRead   string
	TrustScore     string
	SeasonXP       string
	CurrentSeason  string
	FeedLastSeenAt string
	UpdatedAt      string
}

// UserStats is the schema definition for users.stats
var UserStats = UserStatsTable{
	Table:          "users.stats",
	UserID:         "userid",
	XP:             "xp",
	Level:          "level",
	StreakDays:     "streakdays",
	LongestStreak:  "longeststreak",
	LastReadAt:     "lastreadat",
	ChaptersRead:   "chaptersread",
	TrustScore:     "trustscore",
	SeasonXP:       "seasonxp",
	CurrentSeason:  "currentseason",
	FeedLastSeenAt: "feedlastseenat",
	UpdatedAt:      "updatedat",
}

func (t UserStatsTable) Columns() []string {
	return []string{
		t.UserID, t.XP, t.Level, t.StreakDays, t.LongestStreak, t.LastReadAt,
		t.ChaptersRead, t.TrustScore, t.SeasonXP, t.CurrentSeason,
		t.FeedLastSeenAt, t.UpdatedAt,
	}
}

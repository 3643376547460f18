package schema

// SystemActivityEventTable represents the 'system.activity_event' table: an
// append-only log of weighted events driving activity-score decay and the
// per-user activity feed.
type SystemActivityEventTable struct {
	Table      string
	ID         string
	SeriesID   string
	ChapterID  string
	UserID     string
	SourceName string
	EventType  string
	Weight     string
	CreatedAt  string
}

var SystemActivityEvent = SystemActivityEventTable{
	Table:      "system.activity_event",
	ID:         "id",
	SeriesID:   "seriesid",
	ChapterID:  "chapterid",
	UserID:     "userid",
	SourceName: "sourcename",
	EventType:  "eventtype",
	Weight:     "weight",
	CreatedAt:  "createdat",
}

func (t SystemActivityEventTable) Columns() []string {
	return []string{
		t.ID, t.SeriesID, t.ChapterID, t.UserID, t.SourceName, t.EventType,
		t.Weight, t.CreatedAt,
	}
}

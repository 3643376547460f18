package schema

// CoreUserReadTable represents the 'library.chapterread' table: the
// per-user, per-logical-chapter read-state record the Progress Engine
// bulk-upserts with last-write-wins semantics on UpdatedAt.
type CoreUserReadTable struct {
	Table         string
	UserID        string
	ChapterID     string
	IsRead        string
	UpdatedAt     string
	ReadAt        string
	DeviceID      string
	SourceUsedID  string
}

// CoreUserRead is the schema definition for library.chapterread
var CoreUserRead = CoreUserReadTable{
	Table:        "library.chapterread",
	UserID:       "userid",
	ChapterID:    "chapterid",
	IsRead:       "isread",
	UpdatedAt:    "updatedat",
	ReadAt:       "readat",
	DeviceID:     "deviceid",
	SourceUsedID: "sourceusedid",
}

func (t CoreUserReadTable) Columns() []string {
	return []string{t.UserID, t.ChapterID, t.IsRead, t.UpdatedAt, t.ReadAt, t.DeviceID, t.SourceUsedID}
}

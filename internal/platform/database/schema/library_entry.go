package schema

// LibraryEntryTable represents the 'library.entry' table: a user's tracked
// series, keyed functionally on (user_id, source_url) so an entry can exist
// before a Series row has even been resolved for it.
type LibraryEntryTable struct {
	Table                     string
	ID                        string
	UserID                    string
	SeriesID                  string
	SourceURL                 string
	SourceName                string
	Status                    string
	LastReadChapter           string
	LastReadAt                string
	UserRating                string
	PreferredSource           string
	MetadataStatus            string
	SeriesCompletionXPGranted string
	CreatedAt                 string
	UpdatedAt                 string
	DeletedAt                 string
}

// LibraryEntry is the schema definition for library.entry
var LibraryEntry = LibraryEntryTable{
	Table:                     "library.entry",
	ID:                        "id",
	UserID:                    "userid",
	SeriesID:                  "seriesid",
	SourceURL:                 "sourceurl",
	SourceName:                "sourcename",
	Status:                    "status",
	LastReadChapter:           "lastreadchapter",
	LastReadAt:                "lastreadat",
	UserRating:                "userrating",
	PreferredSource:           "preferredsource",
	MetadataStatus:            "metadatastatus",
	SeriesCompletionXPGranted: "seriescompletionxpgranted",
	CreatedAt:                 "createdat",
	UpdatedAt:                 "updatedat",
	DeletedAt:                 "deletedat",
}

func (t LibraryEntryTable) Columns() []string {
	return []string{
		t.ID, t.UserID, t.SeriesID, t.SourceURL, t.SourceName, t.Status,
		t.LastReadChapter, t.LastReadAt, t.UserRating, t.PreferredSource,
		t.MetadataStatus, t.SeriesCompletionXPGranted,
		t.CreatedAt, t.UpdatedAt, t.DeletedAt,
	}
}

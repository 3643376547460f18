package schema

// CoreChapterTable represents the 'core.chapter' table: the logical chapter
// identity shared by every SeriesSource that surfaces it.
type CoreChapterTable struct {
	Table           string
	ID              string
	SeriesID        string
	ChapterNumber   string
	ChapterSlug     string
	ChapterTitle    string
	PublishedAt     string
	FirstDetectedAt string
	CreatedAt       string
	UpdatedAt       string
	DeletedAt       string
}

// CoreChapter is the schema definition for core.chapter
var CoreChapter = CoreChapterTable{
	Table:           "core.chapter",
	ID:              "id",
	SeriesID:        "comicid",
	ChapterNumber:   "chapternumber",
	ChapterSlug:     "chapterslug",
	ChapterTitle:    "title",
	PublishedAt:     "publishedat",
	FirstDetectedAt: "firstdetectedat",
	CreatedAt:       "createdat",
	UpdatedAt:       "updatedat",
	DeletedAt:       "deletedat",
}

package schema

// CrawlerChapterSourceTable represents the 'crawler.chaptersource' table: one
// availability record linking a logical Chapter to the SeriesSource that
// surfaced it.
type CrawlerChapterSourceTable struct {
	Table             string
	ID                string
	ChapterID         string
	SeriesSourceID    string
	SourceName        string
	SourceChapterURL  string
	SourceChapterID   string
	SourcePublishedAt string
	DetectedAt        string
	IsAvailable       string
	CreatedAt         string
	UpdatedAt         string
}

// CrawlerChapterSource is the schema definition for crawler.chaptersource
var CrawlerChapterSource = CrawlerChapterSourceTable{
	Table:             "crawler.chaptersource",
	ID:                "id",
	ChapterID:         "chapterid",
	SeriesSourceID:    "seriessourceid",
	SourceName:        "sourcename",
	SourceChapterURL:  "sourcechapterurl",
	SourceChapterID:   "sourcechapterid",
	SourcePublishedAt: "sourcepublishedat",
	DetectedAt:        "detectedat",
	IsAvailable:       "isavailable",
	CreatedAt:         "createdat",
	UpdatedAt:         "updatedat",
}

package schema

// CrawlerComicSourceTable represents the 'crawler.comicsource' table: the
// SeriesSource attachment of a comic to one external provider.
type CrawlerComicSourceTable struct {
	Table              string
	ID                 string
	ComicID            string
	SourceName         string
	SourceIDExt        string
	SourceURL          string
	SyncPriority       string
	SourceStatus       string
	FailureCount       string
	LastCheckedAt      string
	LastSuccessAt      string
	NextCheckAt        string
	SourceChapterCount string
	CreatedAt          string
	UpdatedAt          string
}

var CrawlerComicSource = CrawlerComicSourceTable{
	Table:              "crawler.comicsource",
	ID:                 "id",
	ComicID:            "comicid",
	SourceName:         "sourcename",
	SourceIDExt:        "sourceid_ext",
	SourceURL:          "sourceurl",
	SyncPriority:       "syncpriority",
	SourceStatus:       "sourcestatus",
	FailureCount:       "failurecount",
	LastCheckedAt:      "lastcheckedat",
	LastSuccessAt:      "lastsuccessat",
	NextCheckAt:        "nextcheckat",
	SourceChapterCount: "sourcechaptercount",
	CreatedAt:          "createdat",
	UpdatedAt:          "updatedat",
}

package schema

// FeedEntryTable represents the 'feed.entry' table: one row per
// (series, chapter_number), accumulating the sources that have surfaced it.
type FeedEntryTable struct {
	Table             string
	ID                string
	SeriesID          string
	ChapterNumber     string
	LogicalChapterID  string
	Sources           string
	FirstDiscoveredAt string
	LastUpdatedAt     string
}

// FeedEntry is the schema definition for feed.entry
var FeedEntry = FeedEntryTable{
	Table:             "feed.entry",
	ID:                "id",
	SeriesID:          "seriesid",
	ChapterNumber:     "chapternumber",
	LogicalChapterID:  "logicalchapterid",
	Sources:           "sources",
	FirstDiscoveredAt: "firstdiscoveredat",
	LastUpdatedAt:     "lastupdatedat",
}

package schema

// SystemQueryStatsTable represents the 'system.query_stats' table: per
// normalized-query counters the Search Storm Controller uses to decide
// whether a miss is worth enqueuing against external sources.
type SystemQueryStatsTable struct {
	Table          string
	QueryKey       string
	TotalSearches  string
	LastEnqueuedAt string
	LastDeferredAt string
	CreatedAt      string
	UpdatedAt      string
}

var SystemQueryStats = SystemQueryStatsTable{
	Table:          "system.query_stats",
	QueryKey:       "querykey",
	TotalSearches:  "totalsearches",
	LastEnqueuedAt: "lastenqueuedat",
	LastDeferredAt: "lastdeferredat",
	CreatedAt:      "createdat",
	UpdatedAt:      "updatedat",
}

func (t SystemQueryStatsTable) Columns() []string {
	return []string{
		t.QueryKey, t.TotalSearches, t.LastEnqueuedAt, t.LastDeferredAt,
		t.CreatedAt, t.UpdatedAt,
	}
}

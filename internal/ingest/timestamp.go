package ingest

import "time"

// TagblockLayout is the layout used by TagblockTimestampToDate.
const TagblockLayout = "2006-01-02 15:04:05"

// DateToTagblockTimestamp converts a UTC date and time to the unix seconds
// stored in the tagblock_timestamp column.
func DateToTagblockTimestamp(year, month, day, hour, minute, second int) int64 {
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC).Unix()
}

// TagblockTimestampToDate formats a tagblock timestamp as
// "YYYY-MM-DD HH:MM:SS" in UTC.
func TagblockTimestampToDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(TagblockLayout)
}

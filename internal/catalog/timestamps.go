package catalog

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// legacyTimestampLayouts are the forms written by SQLite CURRENT_TIMESTAMP
// and by hand-edited databases.
var legacyTimestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// taggedAtLayout is the Tagged_Date form shared with other tools reading
// the database.
const taggedAtLayout = "2006-01-02 15:04:05"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTaggedAt(t time.Time) string {
	return t.UTC().Format(taggedAtLayout)
}

// parseTaggedAt interprets a Tagged_Date value. NULL, empty, and the 0
// sentinel all mean untagged.
func parseTaggedAt(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid {
		return nil, nil
	}
	value := strings.TrimSpace(raw.String)
	if value == "" || value == "0" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	for _, layout := range legacyTimestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", value)
}

func parseRequiredTimestamp(value string) (time.Time, error) {
	t, err := parseTaggedAt(sql.NullString{String: value, Valid: true})
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	return *t, nil
}

package feeds

import "time"

// timestamp layouts seen across the feeds.
var payloadLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 UTC",
	"2006-01-02 15:04:05",
}

// deriveWhen resolves a record's date and time from the payload's
// creation time, falling back to its modification time, falling back to
// the ingestion time. Returned time is ISO-8601 UTC; date is its calendar
// day.
func deriveWhen(created, modified string, now time.Time) (date, ts string) {
	for _, candidate := range []string{created, modified} {
		if candidate == "" {
			continue
		}
		for _, layout := range payloadLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return formatWhen(t)
			}
		}
	}
	return formatWhen(now)
}

func formatWhen(t time.Time) (date, ts string) {
	u := t.UTC()
	return u.Format("2006-01-02"), u.Format("2006-01-02T15:04:05Z")
}

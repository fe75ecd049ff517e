package search

import "time"

// dateLayouts are the string shapes a DATETIME field's value may arrive
// in, tried in order from most to least specific.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
}

// ParseDateTime parses a DATETIME field's string representation into a
// unix-nanosecond instant, trying each of dateLayouts in turn. It
// reports false if value matches none of them.
func ParseDateTime(value string) (int64, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UnixNano(), true
		}
	}
	return 0, false
}

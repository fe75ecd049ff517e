package dispatch

import (
	"regexp"
	"strconv"
	"time"
)

var intervalPattern = regexp.MustCompile(`(\d+)([qMwdhms])`)

var intervalUnitSeconds = map[string]int64{
	"q": 7884864, // ~3 months (30.42d * 3 * 86400s)
	"M": 2628288, // ~1 month (30.42d * 86400s)
	"w": 604800,
	"d": 86400,
	"h": 3600,
	"m": 60,
	"s": 1,
}

// ParseInterval parses a schedule string like "2w3d5h20m30s" into a
// duration, summing every (amount, unit) component it finds and
// ignoring anything that doesn't match the pattern.
func ParseInterval(s string) time.Duration {
	var totalSeconds int64
	for _, match := range intervalPattern.FindAllStringSubmatch(s, -1) {
		amount, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		totalSeconds += amount * intervalUnitSeconds[match[2]]
	}
	return time.Duration(totalSeconds) * time.Second
}

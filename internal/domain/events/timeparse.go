package events

import (
	"strconv"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

var dateParser = dps.Parser{}

// ParseTimestamp interprets a document timestamp field. Digit strings are
// epoch seconds; more than 10 digits means milliseconds and the value is
// divided by 1000. Non-numeric strings get one chance with the natural
// language date parser. "null", empty and unparseable values return nil.
func ParseTimestamp(raw string) *time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "null") {
		return nil
	}

	if isDigits(trimmed) {
		value, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil
		}
		if len(trimmed) > 10 {
			value /= 1000
		}
		t := time.Unix(value, 0).UTC()
		return &t
	}

	parsed, err := dateParser.Parse(&dps.Configuration{PreferredDateSource: dps.CurrentPeriod}, trimmed)
	if err != nil || parsed.IsZero() {
		return nil
	}
	t := parsed.Time.UTC()
	return &t
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

package temporal

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// explicit layouts are tried before the general parser so day-first
// European dates resolve the same way every time
var layouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"02-01-2006",
	"02.01.2006",
	"2006/01/02",
	"01-02-06",
	"2/1/2006",
	"02/01/06",
}

// ParseDate parses s with a permissive multi-format strategy. Bare numbers
// are only accepted as compact YYYYMMDD dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if _, err := strconv.ParseFloat(s, 64); err == nil {
		if len(s) != 8 {
			return time.Time{}, false
		}
		t, err := time.Parse("20060102", s)
		return t, err == nil
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	t, err := dateparse.ParseAny(s, dateparse.RetryAmbiguousDateWithSwap(true))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseNumber parses a numeric cell, accepting a comma decimal separator
// and surrounding spaces.
func ParseNumber(s string) (float64, bool) {
	s = strings.NewReplacer("\u00a0", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// days floors the duration between start and end to whole days.
func days(start, end time.Time) int {
	d := end.Sub(start)
	n := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		n--
	}
	return n
}

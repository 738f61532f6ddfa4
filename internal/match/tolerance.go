package match

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses s accepting either '.' or ',' as the decimal separator.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	return decimal.NewFromString(s)
}

var toleranceUnits = []struct {
	long  []string
	short string
	unit  time.Duration
}{
	{[]string{"milliseconds", "millisecond"}, "ms", time.Millisecond},
	{[]string{"seconds", "second"}, "s", time.Second},
	{[]string{"minutes", "minute"}, "m", time.Minute},
	{[]string{"hours", "hour"}, "h", time.Hour},
	{[]string{"days", "day"}, "d", 24 * time.Hour},
}

// ParseTolerance converts a time tolerance such as "2ms", "10s", "15m",
// "1h", "3d" or their long forms ("25millisecond", "4minute", "30days") to
// a duration. Short units are tried from the smallest up, so "ms" is read
// before "s". An unreadable tolerance is zero.
func ParseTolerance(s string) time.Duration {
	s = strings.ToLower(strings.TrimSpace(s))
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0
	}
	for _, u := range toleranceUnits {
		for _, suffix := range u.long {
			if strings.HasSuffix(s, suffix) {
				return time.Duration(n) * u.unit
			}
		}
	}
	for _, u := range toleranceUnits {
		if strings.HasSuffix(s, u.short) {
			return time.Duration(n) * u.unit
		}
	}
	return 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// ParseTime parses an expected date or timestamp in loc.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

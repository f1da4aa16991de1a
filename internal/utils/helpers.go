package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	secondsInMinute = 60
	secondsInHour   = 3600
	secondsInDay    = 86400
)

// FormatTimeAgo renders the age of t relative to now as
// "just now", "N minute(s) ago", "N hour(s) ago", "1 day ago" or "N days ago".
// Each tier starts at its exact boundary: 60s is "1 minute ago".
func FormatTimeAgo(now, t time.Time) string {
	elapsed := int64(now.Sub(t) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	days := elapsed / secondsInDay
	switch {
	case days > 1:
		return fmt.Sprintf("%d days ago", days)
	case days == 1:
		return "1 day ago"
	}

	if hours := elapsed / secondsInHour; hours >= 1 {
		return plural(hours, "hour")
	}
	if minutes := elapsed / secondsInMinute; minutes >= 1 {
		return plural(minutes, "minute")
	}
	return "just now"
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// ParseID converts a loosely typed JSON value into an int id.
// JSON numbers arrive as float64, path and query values as strings.
func ParseID(value interface{}) (int, bool) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(id), true
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, false
		}
		id, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

// ParseString converts a JSON value into a string; numeric ids are accepted
// so clients may send either "42" or 42
func ParseString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// Truncate shortens s to length runes for log lines
func Truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length]) + "..."
}

// IsValidURL checks if a string is a valid URL
func IsValidURL(str string) bool {
	if str == "" {
		return true // Empty string is considered valid (optional field)
	}

	// Simple URL validation - check for http/https prefix
	return strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://")
}

package aggregate

import (
	"strconv"
	"strings"
)

// ParseHHMMSS converts an "HH:MM:SS" duration field to seconds. Hours may
// exceed 24 (weekly totals arrive as "168:00:00"). Malformed values parse
// to 0 rather than failing the fold: one bad row must not poison a request.
func ParseHHMMSS(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0
	}
	h, err1 := strconv.ParseInt(parts[0], 10, 64)
	m, err2 := strconv.ParseInt(parts[1], 10, 64)
	sec, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0
	}
	return h*3600 + m*60 + sec
}

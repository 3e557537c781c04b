package utils

import (
	"regexp"
	"strings"
	"time"
)

func IsValidEmail(email string) bool {
	// Basic email validation regex pattern
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

// EpochMillis is the timestamp format the CRM front-ends expect in
// `lastmodified` and review dates.
// NowMillis is the write-time value for added/lastmodified fields.
func NowMillis() int64 {
	return EpochMillis(time.Now())
}

func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func SplitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

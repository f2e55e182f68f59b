package analyze

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DefaultLookbackDays = 30

// LookbackWindow returns [now - days, now) with both ends floored to the minute.
func LookbackWindow(days int, now time.Time) Window {
	end := FloorMinute(now)
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	return NewWindow(start, end)
}

// ParseLookbackDays accepts a bare day count or a "30d" style value.
func ParseLookbackDays(input string) (int, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(input), "d")
	if trimmed == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid lookback %q: %w", input, err)
	}
	if days <= 0 {
		return 0, fmt.Errorf("lookback must be positive")
	}
	return days, nil
}

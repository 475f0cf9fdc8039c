package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeWindow is a parsed recency qualifier such as "4 weeks"
type TimeWindow struct {
	N    int
	Unit string // day, week, month, year
}

var windowPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*(d|days?|w|wks?|weeks?|m|mos?|months?|y|yrs?|years?)\s*$`)

// ParseTimeWindow parses "4 weeks", "6 months", "1 year", "30d"
func ParseTimeWindow(s string) (TimeWindow, error) {
	m := windowPattern.FindStringSubmatch(s)
	if m == nil {
		return TimeWindow{}, fmt.Errorf("invalid time window %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return TimeWindow{}, fmt.Errorf("invalid time window %q", s)
	}

	var unit string
	switch u := strings.ToLower(m[2]); {
	case strings.HasPrefix(u, "d"):
		unit = "day"
	case strings.HasPrefix(u, "w"):
		unit = "week"
	case strings.HasPrefix(u, "m"):
		unit = "month"
	default:
		unit = "year"
	}
	return TimeWindow{N: n, Unit: unit}, nil
}

// Cutoff returns the earliest instant inside the window ending at t
func (w TimeWindow) Cutoff(t time.Time) time.Time {
	switch w.Unit {
	case "day":
		return t.AddDate(0, 0, -w.N)
	case "week":
		return t.AddDate(0, 0, -7*w.N)
	case "month":
		return t.AddDate(0, -w.N, 0)
	default:
		return t.AddDate(-w.N, 0, 0)
	}
}

// String renders the window the way the parser writes it
func (w TimeWindow) String() string {
	if w.N == 1 {
		return "1 " + w.Unit
	}
	return strconv.Itoa(w.N) + " " + w.Unit + "s"
}

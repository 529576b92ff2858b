package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Bucket names a dashboard grouping.
type Bucket string

const (
	BucketOverdue  Bucket = "overdue"
	BucketToday    Bucket = "today"
	BucketUpcoming Bucket = "upcoming"
	BucketPast     Bucket = "past"
	// BucketNone marks completed work due before today; it only shows up in history.
	BucketNone Bucket = ""
)

// Classify places a due date into exactly one live dashboard bucket.
// Items due today stay in BucketToday even once completed.
func Classify(due, today Date, completed bool) Bucket {
	switch cmp := due.Compare(today); {
	case cmp == 0:
		return BucketToday
	case cmp > 0:
		return BucketUpcoming
	case completed:
		return BucketNone
	default:
		return BucketOverdue
	}
}

// InPast reports membership in the history view: due on or before today.
// This intentionally overlaps BucketToday.
func InPast(due, today Date) bool {
	return due.Compare(today) <= 0
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a lowercase or capitalised English weekday name.
func ParseWeekday(name string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return wd, nil
}

// WeekdayName returns the lowercase name used in recurrence patterns.
func WeekdayName(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

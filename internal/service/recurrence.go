package service

import (
	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
)

const (
	defaultLookaheadDays = 7
	defaultMaxInstances  = 6
	// searchHorizonDays bounds the scan for the next instance beyond the window.
	searchHorizonDays = 366
)

// RecurrenceOptions tunes the instance window.
type RecurrenceOptions struct {
	LookaheadDays int
	MaxInstances  int
	// StartDate, when set, drops instances before it.
	StartDate *calendar.Date
	// EndDate, when set, drops instances after it.
	EndDate *calendar.Date
}

func (o RecurrenceOptions) withDefaults() RecurrenceOptions {
	if o.LookaheadDays <= 0 {
		o.LookaheadDays = defaultLookaheadDays
	}
	if o.MaxInstances <= 0 {
		o.MaxInstances = defaultMaxInstances
	}
	return o
}

// GenerateInstances returns the dates in [today, today+LookaheadDays] whose
// weekday belongs to the pattern, ascending and capped at MaxInstances.
// The result depends only on its arguments.
func GenerateInstances(today calendar.Date, pattern models.RecurrencePattern, opts RecurrenceOptions) []calendar.Date {
	opts = opts.withDefaults()
	days := pattern.Weekdays()
	if len(days) == 0 || today.IsZero() {
		return []calendar.Date{}
	}

	from := today
	if opts.StartDate != nil && opts.StartDate.After(from) {
		from = *opts.StartDate
	}
	to := today.AddDays(opts.LookaheadDays)
	if opts.EndDate != nil && opts.EndDate.Before(to) {
		to = *opts.EndDate
	}

	instances := make([]calendar.Date, 0, opts.MaxInstances)
	for d := from; !d.After(to) && len(instances) < opts.MaxInstances; d = d.AddDays(1) {
		if days[d.Weekday()] {
			instances = append(instances, d)
		}
	}
	return instances
}

// InstancesFor generates instances of a recurring assignment bounded by its own
// start and end dates. Non-recurring or pattern-less assignments have none.
func InstancesFor(assignment models.Assignment, today calendar.Date, opts RecurrenceOptions) []calendar.Date {
	if !assignment.IsRecurring || assignment.RecurrencePattern == nil {
		return []calendar.Date{}
	}
	start := assignment.DueDate
	opts.StartDate = &start
	opts.EndDate = assignment.RecurrenceEndDate
	return GenerateInstances(today, *assignment.RecurrencePattern, opts)
}

// IsInstanceDate reports whether date is an occurrence of the assignment,
// ignoring the lookahead window.
func IsInstanceDate(assignment models.Assignment, date calendar.Date) bool {
	if !assignment.IsRecurring || assignment.RecurrencePattern == nil {
		return false
	}
	if date.Before(assignment.DueDate) {
		return false
	}
	if assignment.RecurrenceEndDate != nil && date.After(*assignment.RecurrenceEndDate) {
		return false
	}
	return assignment.RecurrencePattern.Weekdays()[date.Weekday()]
}

// nextInstanceAfter finds the first occurrence strictly after date.
func nextInstanceAfter(assignment models.Assignment, date calendar.Date) (calendar.Date, bool) {
	for i := 1; i <= searchHorizonDays; i++ {
		d := date.AddDays(i)
		if assignment.RecurrenceEndDate != nil && d.After(*assignment.RecurrenceEndDate) {
			return calendar.Date{}, false
		}
		if IsInstanceDate(assignment, d) {
			return d, true
		}
	}
	return calendar.Date{}, false
}

// lastInstanceOnOrBefore finds the latest occurrence not after date.
func lastInstanceOnOrBefore(assignment models.Assignment, date calendar.Date) (calendar.Date, bool) {
	for i := 0; i <= searchHorizonDays; i++ {
		d := date.AddDays(-i)
		if d.Before(assignment.DueDate) {
			return calendar.Date{}, false
		}
		if IsInstanceDate(assignment, d) {
			return d, true
		}
	}
	return calendar.Date{}, false
}

// DescribeInstances attaches display labels to instance dates. Today's instance
// is labelled "Today".
func DescribeInstances(dates []calendar.Date, today calendar.Date) []dto.InstanceDescriptor {
	out := make([]dto.InstanceDescriptor, 0, len(dates))
	for _, d := range dates {
		label := d.Label()
		if d.Equal(today) {
			label = "Today"
		}
		out = append(out, dto.InstanceDescriptor{Date: d, DayLabel: label})
	}
	return out
}

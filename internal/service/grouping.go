package service

import (
	"sort"

	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
)

// DashboardGroups holds the bucketed assignments. Overdue, Today and Upcoming
// are disjoint; Past is the history view and shares items with Today.
type DashboardGroups struct {
	Overdue  []dto.DashboardItem
	Today    []dto.DashboardItem
	Upcoming []dto.DashboardItem
	Past     []dto.DashboardItem
}

// ResolveItem pairs an assignment with its completion state and, for recurring
// assignments, its instances in the lookahead window.
func ResolveItem(assignment models.Assignment, records []models.StudentAssignment, studentID string, today calendar.Date, opts RecurrenceOptions) dto.DashboardItem {
	opts = opts.withDefaults()
	res := ResolveCompletion(assignment, records, studentID, today)
	item := dto.DashboardItem{
		Assignment:    assignment,
		EffectiveDate: assignment.DueDate,
		Completed:     res.Completed,
		CompletedAt:   res.CompletedAt,
	}
	if !assignment.IsRecurring {
		return item
	}

	item.InstanceCompletions = res.Instances
	instances := InstancesFor(assignment, today, opts)
	item.Instances = DescribeInstances(instances, today)
	for i := range item.Instances {
		state := res.Instance(item.Instances[i].Date)
		item.Instances[i].Completed = state.Completed
		item.Instances[i].CompletedAt = state.CompletedAt
	}

	switch {
	case len(instances) > 0:
		item.EffectiveDate = instances[0]
	case assignment.DueDate.After(today):
		// The series has not started; anchor on its first real occurrence.
		if first, ok := nextInstanceAfter(assignment, assignment.DueDate.AddDays(-1)); ok {
			item.EffectiveDate = first
		}
	default:
		if next, ok := nextInstanceAfter(assignment, today.AddDays(opts.LookaheadDays)); ok {
			item.EffectiveDate = next
			break
		}
		item.Ended = true
		limit := today
		if end := assignment.RecurrenceEndDate; end != nil && end.Before(limit) {
			limit = *end
		}
		if last, ok := lastInstanceOnOrBefore(assignment, limit); ok {
			item.EffectiveDate = last
		}
	}
	return item
}

// GroupAssignments partitions resolved items for the dashboard. Upcoming and
// Past are ordered by effective date; Overdue and Today keep input order.
func GroupAssignments(items []dto.DashboardItem, today calendar.Date) DashboardGroups {
	groups := DashboardGroups{
		Overdue:  []dto.DashboardItem{},
		Today:    []dto.DashboardItem{},
		Upcoming: []dto.DashboardItem{},
		Past:     []dto.DashboardItem{},
	}
	for _, item := range items {
		if item.Ended {
			groups.Past = append(groups.Past, item)
			continue
		}
		switch calendar.Classify(item.EffectiveDate, today, item.Completed) {
		case calendar.BucketOverdue:
			groups.Overdue = append(groups.Overdue, item)
		case calendar.BucketToday:
			groups.Today = append(groups.Today, item)
		case calendar.BucketUpcoming:
			groups.Upcoming = append(groups.Upcoming, item)
		}
		if calendar.InPast(item.EffectiveDate, today) {
			groups.Past = append(groups.Past, item)
		}
	}
	byEffectiveDate(groups.Upcoming)
	byEffectiveDate(groups.Past)
	return groups
}

func byEffectiveDate(items []dto.DashboardItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EffectiveDate.Before(items[j].EffectiveDate)
	})
}

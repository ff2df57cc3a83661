package allocator

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// SlotOverride changes matching slot-instances before allocation
type SlotOverride struct {
	// AppliesTo reports whether the override applies to a date
	AppliesTo func(date string) bool

	// SlotLabel restricts the override to slots with this label (empty means all slots)
	SlotLabel string

	// Capacity replaces the slot's capacity if set
	Capacity *int

	// Closed keeps the instance in the schedule but stops it being filled
	Closed bool
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// ExpandSlotInstances returns every occurrence of the slots between from and
// to inclusive, with overrides applied in order, sorted by date, start time,
// end time and slot ID.
func ExpandSlotInstances(slots []model.Slot, from, to string, overrides []SlotOverride) ([]SlotInstance, error) {
	start, err := model.ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := model.ParseDate(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("date range end %s is before start %s", to, from)
	}

	var instances []SlotInstance
	for _, slot := range slots {
		if err := slot.Validate(); err != nil {
			return nil, err
		}

		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: []rrule.Weekday{rruleWeekdays[slot.DayOfWeek]},
			Dtstart:   start,
			Until:     end,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build recurrence for slot %q: %w", slot.Label, err)
		}

		for _, occurrence := range rule.All() {
			instance := SlotInstance{
				Slot:     slot,
				Date:     occurrence.Format(model.DateLayout),
				Capacity: slot.Capacity,
			}
			applyOverrides(&instance, overrides)
			instances = append(instances, instance)
		}
	}

	SortInstances(instances)
	return instances, nil
}

func applyOverrides(instance *SlotInstance, overrides []SlotOverride) {
	for _, o := range overrides {
		if o.SlotLabel != "" && o.SlotLabel != instance.Slot.Label {
			continue
		}
		if o.AppliesTo == nil || !o.AppliesTo(instance.Date) {
			continue
		}
		if o.Capacity != nil {
			instance.Capacity = *o.Capacity
		}
		if o.Closed {
			instance.Closed = true
		}
	}
}

// SortInstances orders instances chronologically
func SortInstances(instances []SlotInstance) {
	sort.SliceStable(instances, func(i, j int) bool {
		a, b := instances[i], instances[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Slot.Start != b.Slot.Start {
			return a.Slot.Start < b.Slot.Start
		}
		if a.Slot.End != b.Slot.End {
			return a.Slot.End < b.Slot.End
		}
		if a.Slot.Label != b.Slot.Label {
			return a.Slot.Label < b.Slot.Label
		}
		return a.Slot.ID < b.Slot.ID
	})
}

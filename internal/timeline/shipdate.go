package timeline

import "time"

// Schedule classifies the current ship date against the original commitment.
type Schedule string

const (
	ScheduleOnSchedule  Schedule = "On Schedule"
	ScheduleDelayed     Schedule = "Delayed"
	ScheduleAccelerated Schedule = "Accelerated"
)

// ClassifySchedule compares ship dates at day granularity. The three outcomes
// are exhaustive and mutually exclusive: equal dates are On Schedule, a later
// current date is Delayed, an earlier one is Accelerated.
func ClassifySchedule(original, current time.Time) Schedule {
	o := truncateToDay(original)
	c := truncateToDay(current)
	switch {
	case c.After(o):
		return ScheduleDelayed
	case c.Before(o):
		return ScheduleAccelerated
	default:
		return ScheduleOnSchedule
	}
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// shipDateReasonLabels maps ship-date change reason codes to display labels.
var shipDateReasonLabels = map[string]string{
	"client-request":     "Client Request",
	"material-delay":     "Material Delay",
	"production-issue":   "Production Issue",
	"quality-rework":     "Quality Rework",
	"expedite-request":   "Expedite Request",
	"shipping-upgrade":   "Shipping Upgrade",
	"schedule-balancing": "Schedule Balancing",
	"initial-commitment": "Initial Commitment",
}

// ReasonLabel returns the display label for a ship-date change reason code,
// falling back to the raw code string when unrecognized.
func ReasonLabel(code string) string {
	if label, ok := shipDateReasonLabels[code]; ok {
		return label
	}
	return code
}

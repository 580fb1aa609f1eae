package timeline

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestClassifySchedule(t *testing.T) {
	original := date(2026, time.March, 15)

	tests := []struct {
		name    string
		current time.Time
		want    Schedule
	}{
		{"equal dates are on schedule", date(2026, time.March, 15), ScheduleOnSchedule},
		{"later date is delayed", date(2026, time.March, 20), ScheduleDelayed},
		{"earlier date is accelerated", date(2026, time.March, 10), ScheduleAccelerated},
		{"next day is delayed", date(2026, time.March, 16), ScheduleDelayed},
		{"previous day is accelerated", date(2026, time.March, 14), ScheduleAccelerated},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedule(original, tc.current); got != tc.want {
				t.Errorf("ClassifySchedule(%s, %s) = %s, want %s",
					original.Format("2006-01-02"), tc.current.Format("2006-01-02"), got, tc.want)
			}
		})
	}
}

// Same calendar day at different clock times must still be On Schedule:
// classification is date-granular.
func TestClassifyScheduleIgnoresTimeOfDay(t *testing.T) {
	original := time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)
	current := time.Date(2026, time.March, 15, 23, 30, 0, 0, time.UTC)

	if got := ClassifySchedule(original, current); got != ScheduleOnSchedule {
		t.Errorf("same-day times classified as %s, want On Schedule", got)
	}
}

func TestReasonLabel(t *testing.T) {
	if got := ReasonLabel("client-request"); got != "Client Request" {
		t.Errorf("ReasonLabel(client-request) = %q", got)
	}
	if got := ReasonLabel("material-delay"); got != "Material Delay" {
		t.Errorf("ReasonLabel(material-delay) = %q", got)
	}
	// Unrecognized codes fall back to the raw string.
	if got := ReasonLabel("act-of-ferret"); got != "act-of-ferret" {
		t.Errorf("ReasonLabel fallback = %q", got)
	}
}

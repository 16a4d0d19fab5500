// Package booking implements the timezone-correct slot generator, the
// race-safe booking creator and the reminder worker. UTC instants are the
// only source of truth for time; the fixed business timezone is used for all
// display.
package booking

import (
	"time"

	dbpkg "leadflow/internal/db"
)

const (
	MeetingMinutes = 15
	BufferMinutes  = 15

	// SlotSpacing separates consecutive slot starts.
	SlotSpacing = (MeetingMinutes + BufferMinutes) * time.Minute

	MaxSlots    = 8
	MaxScanDays = 7
)

// SlotConfig fixes the business calendar for the generator.
type SlotConfig struct {
	Location  *time.Location
	OpenHour  int           // local hour, inclusive
	CloseHour int           // local hour, exclusive
	MinLead   time.Duration // earliest bookable = now + MinLead
}

// Slot is one bookable window. Start/End are UTC; Label and LocalTime are
// pre-formatted in the business timezone.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Label     string    `json:"label"`
	LocalTime string    `json:"localTime"`
}

// Interval is an existing confirmed booking's occupied window in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps is the half-open interval overlap test used everywhere a slot is
// checked against a booking: [aStart,aEnd) intersects [bStart,bEnd).
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return bStart.Before(aEnd) && bEnd.After(aStart)
}

// GenerateSlots enumerates bookable windows: calendar days from the earliest
// bookable instant, business hours in local time, slots spaced by
// meeting+buffer, skipping anything inside the lead time or overlapping an
// existing confirmed booking. Stops at MaxSlots collected or MaxScanDays
// scanned. Stateless — correctness under races belongs to the creator.
func GenerateSlots(now time.Time, cfg SlotConfig, booked []Interval) []Slot {
	earliest := now.Add(cfg.MinLead)
	localEarliest := earliest.In(cfg.Location)
	localNow := now.In(cfg.Location)

	slots := make([]Slot, 0, MaxSlots)

	for day := 0; day < MaxScanDays; day++ {
		date := localEarliest.AddDate(0, 0, day)
		dayStart := time.Date(date.Year(), date.Month(), date.Day(), cfg.OpenHour, 0, 0, 0, cfg.Location)
		dayEnd := time.Date(date.Year(), date.Month(), date.Day(), cfg.CloseHour, 0, 0, 0, cfg.Location)

		for start := dayStart; start.Add(MeetingMinutes * time.Minute).Before(dayEnd) || start.Add(MeetingMinutes*time.Minute).Equal(dayEnd); start = start.Add(SlotSpacing) {
			if start.Before(localEarliest) {
				continue
			}

			startUTC := start.UTC()
			endUTC := start.Add(MeetingMinutes * time.Minute).UTC()

			conflict := false
			for _, b := range booked {
				if Overlaps(startUTC, endUTC, b.Start, b.End) {
					conflict = true
					break
				}
			}
			if conflict {
				continue
			}

			slots = append(slots, Slot{
				Start:     startUTC,
				End:       endUTC,
				Label:     slotLabel(start, localNow),
				LocalTime: start.Format("Monday, January 2, 3:04 PM"),
			})
			if len(slots) >= MaxSlots {
				return slots
			}
		}
	}

	return slots
}

// slotLabel renders "Today/Tomorrow/<Weekday>, h:mm a" relative to the
// current local date.
func slotLabel(slotLocal, nowLocal time.Time) string {
	day := dayName(slotLocal, nowLocal)
	return day + ", " + slotLocal.Format("3:04 PM")
}

func dayName(slotLocal, nowLocal time.Time) string {
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, nowLocal.Location())
	slotDay := time.Date(slotLocal.Year(), slotLocal.Month(), slotLocal.Day(), 0, 0, 0, 0, slotLocal.Location())

	switch int(slotDay.Sub(today).Hours() / 24) {
	case 0:
		return "Today"
	case 1:
		return "Tomorrow"
	default:
		return slotLocal.Format("Monday")
	}
}

// FormatLocalDisplay renders the authoritative human-readable local time
// string stored on the booking at creation, e.g.
// "Tuesday, December 23, 2025 at 1:00 PM".
func FormatLocalDisplay(startUTC time.Time, loc *time.Location) string {
	return startUTC.In(loc).Format("Monday, January 2, 2006 at 3:04 PM")
}

// IntervalsFromBookings converts booking rows to overlap-test intervals.
func IntervalsFromBookings(rows []dbpkg.Booking) []Interval {
	out := make([]Interval, 0, len(rows))
	for _, b := range rows {
		out = append(out, Interval{Start: b.SelectedStart.UTC(), End: b.SelectedEnd.UTC()})
	}
	return out
}

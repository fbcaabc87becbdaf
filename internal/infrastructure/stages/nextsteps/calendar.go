package nextsteps

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

const (
	icalProdID  = "-//Legal Lens//iCal Export//EN"
	icalSummary = "Legal Deadline"
)

// ParseDeadline reads dd/mm/yyyy or dd-mm-yyyy. Two-digit years are taken as 20yy.
func ParseDeadline(s string) (time.Time, bool) {
	parts := strings.Split(strings.ReplaceAll(strings.TrimSpace(s), "-", "/"), "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}
	day, month, year := nums[0], nums[1], nums[2]
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; such dates are rejected.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// ExportICal renders one all-day event per parseable deadline. Unparseable
// entries are skipped.
func ExportICal(documentID string, deadlines []string, stamp time.Time) []byte {
	cal := ics.NewCalendar()
	cal.SetProductId(icalProdID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)
	for i, d := range deadlines {
		date, ok := ParseDeadline(d)
		if !ok {
			continue
		}
		ev := cal.AddEvent(fmt.Sprintf("%s-%d-%s@legal-lens", date.Format("20060102"), i, documentID))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetSummary(icalSummary)
		ev.SetDescription(fmt.Sprintf("Deadline %s in %s", d, documentID))
		ev.SetAllDayStartAt(date)
		ev.SetAllDayEndAt(date.AddDate(0, 0, 1))
	}
	return []byte(cal.Serialize())
}

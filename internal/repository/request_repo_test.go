package repository

import (
	"testing"
	"time"
)

// Document numbers stamp the local calendar date, so the daily counter window
// must open at local midnight, not at a UTC-aligned 24h boundary.
func TestStartOfDayMatchesLocalDate(t *testing.T) {
	zones := []*time.Location{
		time.UTC,
		time.FixedZone("UTC+8", 8*3600),
		time.FixedZone("UTC-5", -5*3600),
	}

	for _, loc := range zones {
		for _, hour := range []int{0, 3, 23} {
			ts := time.Date(2026, time.August, 30, hour, 15, 0, 0, loc)
			start := startOfDay(ts)

			if start.Format("20060102") != ts.Format("20060102") {
				t.Fatalf("zone %v hour %d: window date %s does not match document date %s",
					loc, hour, start.Format("20060102"), ts.Format("20060102"))
			}
			if start.Hour() != 0 || start.Minute() != 0 || start.Second() != 0 {
				t.Fatalf("zone %v hour %d: window start %v is not midnight", loc, hour, start)
			}
			if start.Location() != ts.Location() {
				t.Fatalf("zone %v: window start changed location to %v", loc, start.Location())
			}
			if ts.Before(start) {
				t.Fatalf("zone %v hour %d: timestamp %v falls before its own day window %v", loc, hour, ts, start)
			}
		}
	}
}

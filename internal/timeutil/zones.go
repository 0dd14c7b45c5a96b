package timeutil

import (
	"errors"
	"time"
)

// ErrZoneNotFound is returned when no catalog zone matches the requested offset.
var ErrZoneNotFound = errors.New("no time zone found for offset")

// zoneCatalog is the fixed set of zone identifiers a whole-hour UTC offset is
// resolved against. The first zone whose current offset matches wins, so the
// stored identifier depends on the season in which the user registers; that is
// intentional, users are told to re-run /set_timezone when clocks change.
// Between standard and daylight offsets, the catalog covers every whole-hour
// offset from UTC-12 to UTC+14.
var zoneCatalog = []string{
	"Etc/GMT+12",          // -12
	"Pacific/Pago_Pago",   // -11
	"Pacific/Honolulu",    // -10
	"America/Anchorage",   // -9 / -8
	"America/Los_Angeles", // -8 / -7
	"America/Phoenix",     // -7
	"America/Denver",      // -7 / -6
	"America/Chicago",     // -6 / -5
	"America/New_York",    // -5 / -4
	"America/Halifax",     // -4 / -3
	"America/Sao_Paulo",   // -3
	"America/Noronha",     // -2
	"Atlantic/Azores",     // -1 / 0
	"UTC",                 // 0
	"Europe/London",       // 0 / +1
	"Europe/Berlin",       // +1 / +2
	"Europe/Kyiv",         // +2 / +3
	"Europe/Moscow",       // +3
	"Asia/Dubai",          // +4
	"Asia/Karachi",        // +5
	"Asia/Dhaka",          // +6
	"Asia/Bangkok",        // +7
	"Asia/Shanghai",       // +8
	"Asia/Tokyo",          // +9
	"Australia/Sydney",    // +10 / +11
	"Pacific/Guadalcanal", // +11
	"Pacific/Auckland",    // +12 / +13
	"Pacific/Apia",        // +13
	"Pacific/Kiritimati",  // +14
}

// ZoneForOffset resolves a whole-hour UTC offset to the first catalog zone
// whose offset at the given instant equals it. It returns ErrZoneNotFound
// when no zone matches.
func ZoneForOffset(offset int, at time.Time) (*time.Location, error) {
	want := offset * 3600
	for _, name := range zoneCatalog {
		loc, err := time.LoadLocation(name)
		if err != nil {
			// Host tzdata may lack an entry; skip it.
			continue
		}
		if _, secs := at.In(loc).Zone(); secs == want {
			return loc, nil
		}
	}
	return nil, ErrZoneNotFound
}

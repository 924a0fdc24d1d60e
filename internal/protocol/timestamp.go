// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"regexp"
	"strconv"
	"time"
)

// YYYY[-_]?MM[-_]?DD[-_]HHMM[SS]
var filenameTimestamp = regexp.MustCompile(`(\d{4})[-_]?(\d{2})[-_]?(\d{2})[-_](\d{2})(\d{2})(\d{2})?`)

// ParseRecordedAt extracts the recording start time encoded in a device
// filename. It returns nil when the name carries no valid timestamp.
func ParseRecordedAt(filename string, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.UTC
	}
	for _, m := range filenameTimestamp.FindAllStringSubmatch(filename, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		sec := 0
		if m[6] != "" {
			sec, _ = strconv.Atoi(m[6])
		}
		if month < 1 || month > 12 || hour > 23 || minute > 59 || sec > 59 {
			continue
		}
		t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, loc)
		// time.Date normalises Feb 30 into March; reject instead.
		if t.Day() != day || int(t.Month()) != month {
			continue
		}
		return &t
	}
	return nil
}

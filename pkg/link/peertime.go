// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParsePeerTime parses "DDMMYYHHMMSS" or "DATE:DDMMYY,TIME:HHMMSS".
func ParsePeerTime(s string) (time.Time, error) {
	var date, clock string

	if di, ti := strings.Index(s, "DATE:"), strings.Index(s, "TIME:"); di >= 0 && ti >= 0 {
		date = field(s[di+5:], 6)
		clock = field(s[ti+5:], 6)
	} else {
		if len(s) < 12 {
			return time.Time{}, fmt.Errorf("%w: time reply %q", ErrMalformedReply, s)
		}
		date, clock = s[0:6], s[6:12]
	}
	if len(date) != 6 || len(clock) != 6 {
		return time.Time{}, fmt.Errorf("%w: time reply %q", ErrMalformedReply, s)
	}

	day, err1 := strconv.Atoi(date[0:2])
	month, err2 := strconv.Atoi(date[2:4])
	year, err3 := strconv.Atoi(date[4:6])
	hour, err4 := strconv.Atoi(clock[0:2])
	minute, err5 := strconv.Atoi(clock[2:4])
	second, err6 := strconv.Atoi(clock[4:6])
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: time reply %q", ErrMalformedReply, s)
		}
	}
	year += 2000

	if day < 1 || day > 31 || month < 1 || month > 12 || year < 2020 || year > 2050 {
		return time.Time{}, fmt.Errorf("%w: invalid date %02d/%02d/%04d", ErrMalformedReply, day, month, year)
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: invalid time %02d:%02d:%02d", ErrMalformedReply, hour, minute, second)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local), nil
}

// field returns the leading n bytes of s, or all of s when shorter.
func field(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

package quarter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Excel serial day numbers accepted as dates: 1954-10-03 through 9999-12-31.
const (
	minExcelSerial = 20000
	maxExcelSerial = 2958465
)

var excelSerial = regexp.MustCompile(`^\d+(\.\d+)?$`)

// dayFirstLayouts lists the layouts tried by ParseDate. ISO forms come first
// so that "2023-01-02" is never read day-first.
var dayFirstLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02-01-2006",
	"02.01.2006",
	"02/01/06",
	"2006/01/02",
}

// ParseDate parses a calendar date using a day-first convention. Excel serial
// day numbers, as produced by raw xlsx cells, are accepted too. The result is
// truncated to midnight UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dayFirstLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return DateOnly(parsed), nil
		}
	}
	if excelSerial.MatchString(value) {
		serial, err := strconv.ParseFloat(value, 64)
		if err == nil && serial >= minExcelSerial && serial <= maxExcelSerial {
			parsed, err := excelize.ExcelDateToTime(serial, false)
			if err == nil {
				return DateOnly(parsed), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %s", value)
}

// DateOnly drops the clock part of t, keeping its calendar day in UTC.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

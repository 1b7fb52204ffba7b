// Package quarter parses the quarter labels found in registry snapshots into
// canonical calendar quarters and computes their date intervals.
package quarter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedLabel is returned when a label matches none of the accepted
// quarter grammars.
var ErrMalformedLabel = errors.New("malformed quarter label")

var (
	trimesterLabel = regexp.MustCompile(`(?i)^(\d{4})-T(\d+)$`)
	canonicalLabel = regexp.MustCompile(`(?i)^(\d{4})\s*-?\s*Q(\d+)$`)
	prefixedLabel  = regexp.MustCompile(`^(.*\S)\s+(\d{1,2})/(\d{2}|\d{4})$`)
)

// Period is a calendar quarter.
type Period struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

// FromTime returns the quarter containing t.
func FromTime(t time.Time) Period {
	return Period{Year: t.Year(), Quarter: (int(t.Month())-1)/3 + 1}
}

// Parse converts a quarter label into a Period. Accepted forms are
// "2023-T3", "2023Q3", "<prefix> MM/YY" (e.g. "TRIM MOV 09/23") and calendar
// dates in any layout ParseDate understands.
func Parse(label string) (Period, error) {
	value := strings.TrimSpace(label)
	if value == "" {
		return Period{}, fmt.Errorf("%w: empty label", ErrMalformedLabel)
	}

	if m := trimesterLabel.FindStringSubmatch(value); m != nil {
		return fromParts(label, m[1], m[2])
	}
	if m := canonicalLabel.FindStringSubmatch(value); m != nil {
		return fromParts(label, m[1], m[2])
	}
	if m := prefixedLabel.FindStringSubmatch(value); m != nil {
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return Period{}, fmt.Errorf("%w: %q has month %d", ErrMalformedLabel, label, month)
		}
		yearText := m[3]
		if len(yearText) == 2 {
			yearText = "20" + yearText
		}
		year, _ := strconv.Atoi(yearText)
		return FromTime(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)), nil
	}
	if parsed, err := ParseDate(value); err == nil {
		return FromTime(parsed), nil
	}
	return Period{}, fmt.Errorf("%w: %q", ErrMalformedLabel, label)
}

func fromParts(label, yearText, quarterText string) (Period, error) {
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrMalformedLabel, label)
	}
	q, err := strconv.Atoi(quarterText)
	if err != nil || q < 1 || q > 4 {
		return Period{}, fmt.Errorf("%w: %q has quarter %s", ErrMalformedLabel, label, quarterText)
	}
	return Period{Year: year, Quarter: q}, nil
}

// Valid reports whether the quarter number is within 1..4.
func (p Period) Valid() bool {
	return p.Quarter >= 1 && p.Quarter <= 4
}

// Start is the first day of the quarter.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(3*(p.Quarter-1)+1), 1, 0, 0, 0, 0, time.UTC)
}

// End is the last calendar day of the quarter's final month.
func (p Period) End() time.Time {
	return LastDayOfMonth(p.Year, time.Month(3*p.Quarter))
}

// Next returns the following calendar quarter.
func (p Period) Next() Period {
	if p.Quarter == 4 {
		return Period{Year: p.Year + 1, Quarter: 1}
	}
	return Period{Year: p.Year, Quarter: p.Quarter + 1}
}

// Compare orders periods by year, then quarter.
func (p Period) Compare(other Period) int {
	switch {
	case p.Year < other.Year:
		return -1
	case p.Year > other.Year:
		return 1
	case p.Quarter < other.Quarter:
		return -1
	case p.Quarter > other.Quarter:
		return 1
	}
	return 0
}

// Before reports whether p sorts before other.
func (p Period) Before(other Period) bool {
	return p.Compare(other) < 0
}

// String renders the canonical form, e.g. "2023Q3".
func (p Period) String() string {
	return fmt.Sprintf("%dQ%d", p.Year, p.Quarter)
}

// LastDayOfMonth returns the last day of the given month. Day zero of the
// following month normalises to it, December wrapping into January.
func LastDayOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

// MarshalText renders the canonical label, so periods encode as "2023Q3"
// in JSON.
func (p Period) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d-%d", ErrMalformedLabel, p.Year, p.Quarter)
	}
	return []byte(p.String()), nil
}

// UnmarshalText accepts any label Parse does.
func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

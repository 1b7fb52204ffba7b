// Package category normalises raw registry category values into canonical
// labels and defines their display order.
package category

import (
	"math"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// NoCategory is the sentinel label for missing or blank category values.
const NoCategory Label = "SEM CAT"

// Kind classifies a label.
type Kind int

const (
	Numeric Kind = iota
	Text
	Sentinel
)

var numericLabel = regexp.MustCompile(`^-?\d+$`)

// Label is a canonical category value.
type Label string

// Kind reports which class the label belongs to.
func (l Label) Kind() Kind {
	switch {
	case l == NoCategory:
		return Sentinel
	case numericLabel.MatchString(string(l)):
		return Numeric
	default:
		return Text
	}
}

func (l Label) String() string {
	return string(l)
}

// Normalize maps a raw cell value to a Label. Blank and NaN values become
// NoCategory, numeric-like values are truncated to an integer and
// stringified, anything else is kept as trimmed text. The same raw input
// always yields the same label, and Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) Label {
	value := strings.TrimSpace(raw)
	if value == "" {
		return NoCategory
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return fromFloat(f, value)
	}
	return Label(value)
}

func fromFloat(f float64, text string) Label {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		if strings.EqualFold(text, "nan") {
			return NoCategory
		}
		return Label(strings.TrimSpace(text))
	}
	t := math.Trunc(f)
	if t == 0 {
		t = 0 // drops the sign of -0
	}
	return Label(strconv.FormatFloat(t, 'f', 0, 64))
}

// Compare orders labels: numeric ranks ascending, then free text
// alphabetically, then the NoCategory sentinel last.
func Compare(a, b Label) int {
	ka, kb := a.Kind(), b.Kind()
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch ka {
	case Numeric:
		return numericValue(a).Cmp(numericValue(b))
	case Text:
		return strings.Compare(string(a), string(b))
	}
	return 0
}

func numericValue(l Label) *big.Int {
	n, ok := new(big.Int).SetString(string(l), 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// Sort orders labels in place using Compare.
func Sort(labels []Label) {
	sort.SliceStable(labels, func(i, j int) bool {
		return Compare(labels[i], labels[j]) < 0
	})
}

// Ordered returns the distinct labels in display order.
func Ordered(labels []Label) []Label {
	seen := make(map[Label]struct{}, len(labels))
	result := make([]Label, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		result = append(result, l)
	}
	Sort(result)
	return result
}

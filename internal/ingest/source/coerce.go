package source

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// LooseString tolerates the scalar shapes sources use interchangeably: a
// string, a number, or an object carrying a "name" field. Anything else
// leaves the value unset rather than failing the enclosing record.
type LooseString struct {
	Value string
	Valid bool
}

func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Value, s.Valid = str, true
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		s.Value, s.Valid = num.String(), true
		return nil
	}

	var named struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(data, &named); err == nil && named.Name != nil {
		s.Value, s.Valid = *named.Name, true
	}
	return nil
}

// Ptr returns the value as a nullable string, treating empty as absent.
func (s *LooseString) Ptr() *string {
	if s == nil || !s.Valid || s.Value == "" {
		return nil
	}
	v := s.Value
	return &v
}

var digitRun = regexp.MustCompile(`\d+`)

// ParseSampleSize coerces a raw sample-size value. Numbers are truncated to
// integers; strings have thousands separators stripped and the leading digit
// run extracted. Anything else is absent.
func ParseSampleSize(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		n := int(math.Trunc(f))
		return &n
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		m := digitRun.FindString(strings.ReplaceAll(s, ",", ""))
		if m == "" {
			return nil
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

// ParsePercent coerces a percent value that may arrive as a number or as a
// string like "47%". The second return is false when the value has a shape
// the schema does not admit at all (object, array, boolean).
func ParsePercent(raw json.RawMessage) (*float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, true
		}
		return &v, true
	}
	return nil, false
}

// HumanizeSubject turns slug-like subject identifiers into display names:
// dashes become spaces and each word is title-cased ("donald-trump" becomes
// "Donald Trump"). Empty input stays absent.
func HumanizeSubject(s string) *string {
	if strings.Contains(s, "-") {
		s = strings.ReplaceAll(s, "-", " ")
	}
	words := strings.Fields(strings.TrimSpace(s))
	if len(words) == 0 {
		return nil
	}
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	out := strings.Join(words, " ")
	return &out
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses the date formats sources emit, interpreting date-only
// values as UTC midnight. Unparsable strings are absent, never an error.
func ParseDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

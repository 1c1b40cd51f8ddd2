package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Scalar is a nullable value the store hands back either as a number or as
// text. The zero value is null.
type Scalar struct {
	num  *float64
	text *string
}

// NumberScalar returns a numeric Scalar.
func NumberScalar(f float64) Scalar {
	return Scalar{num: &f}
}

// TextScalar returns a textual Scalar.
func TextScalar(s string) Scalar {
	return Scalar{text: &s}
}

// ScalarFromPtr maps a nil pointer to null.
func ScalarFromPtr[T float64 | string](p *T) Scalar {
	if p == nil {
		return Scalar{}
	}
	switch v := any(*p).(type) {
	case float64:
		return NumberScalar(v)
	case string:
		return TextScalar(v)
	}
	return Scalar{}
}

// IsNull reports whether the value is absent.
func (s Scalar) IsNull() bool {
	return s.num == nil && s.text == nil
}

// Float parses the value as a finite number. Text is trimmed before parsing
// and a leading U+2212 minus sign reads as '-'. NaN and ±Inf are rejected.
func (s Scalar) Float() (float64, bool) {
	var f float64
	switch {
	case s.num != nil:
		f = *s.num
	case s.text != nil:
		text := strings.TrimSpace(*s.text)
		if rest, ok := strings.CutPrefix(text, "\u2212"); ok {
			text = "-" + rest
		}
		parsed, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Text renders the value as a string. Numbers use the shortest exact form,
// so integral values print without an exponent or fraction.
func (s Scalar) Text() (string, bool) {
	switch {
	case s.text != nil:
		return *s.text, true
	case s.num != nil:
		return strconv.FormatFloat(*s.num, 'f', -1, 64), true
	default:
		return "", false
	}
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	switch {
	case s.text != nil:
		return json.Marshal(*s.text)
	case s.num != nil:
		if math.IsNaN(*s.num) || math.IsInf(*s.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(*s.num)
	default:
		return []byte("null"), nil
	}
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = Scalar{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("failed to decode scalar text: %w", err)
		}
		s.text = &text
		return nil
	}
	// keep big integers exact by holding them as text
	if !bytes.ContainsAny(data, ".eE") && len(data) > 15 {
		text := string(data)
		s.text = &text
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to decode scalar number: %w", err)
	}
	s.num = &f
	return nil
}

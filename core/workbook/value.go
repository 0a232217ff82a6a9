package workbook

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Kind tags the scalar stored in a cell. Tables are schema-on-write: any
// record may carry any subset of the table's columns, and a missing or
// explicit null cell is KindNull.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindDate
)

const dateLayout = "2006-01-02"

// Value is a tagged workbook scalar: string, number, date or null.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	date time.Time
}

func Null() Value                { return Value{} }
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Number(f float64) Value    { return Value{kind: KindNumber, num: f} }
func Date(t time.Time) Value    { return Value{kind: KindDate, date: t} }
func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) Num() float64    { return v.num }
func (v Value) Time() time.Time { return v.date }

// Str returns the string payload for KindString values and "" otherwise.
func (v Value) Str() string {
	if v.kind == KindString {
		return v.str
	}
	return ""
}

// Key returns the canonical string form used for primary-key identity.
// Numbers format without a trailing fraction so the number 7 and the string
// "7" share a key, while "07" keeps its padding and stays distinct.
func (v Value) Key() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindDate:
		return v.date.Format(dateLayout)
	default:
		return ""
	}
}

// Display is the user-facing rendering; identical to Key for non-null values.
func (v Value) Display() string {
	return v.Key()
}

// Equal compares kind and payload. Null equals only null.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindDate:
		return v.date.Equal(o.date)
	default:
		return true
	}
}

// MarshalJSON renders null as null, numbers as numbers and everything else
// in its canonical string form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		return json.Marshal(v.num)
	default:
		return json.Marshal(v.Key())
	}
}

// UnmarshalJSON accepts null, numbers, booleans and strings. Strings go
// through Parse so ISO dates arrive tagged and zero-padded keys stay strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = Null()
	case float64:
		*v = Number(t)
	case bool:
		*v = String(strconv.FormatBool(t))
	case string:
		*v = Parse(t)
	default:
		return &json.UnsupportedValueError{Str: "cell value must be a scalar"}
	}
	return nil
}

// Parse turns a raw cell string back into a tagged Value. A token is only
// promoted to a number or date when its canonical re-rendering matches the
// input exactly; that guard keeps zero-padded keys like "07" as strings.
func Parse(raw string) Value {
	if strings.TrimSpace(raw) == "" {
		return Null()
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if strconv.FormatFloat(f, 'f', -1, 64) == raw {
			return Number(f)
		}
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		if t.Format(dateLayout) == raw {
			return Date(t)
		}
	}
	return String(raw)
}

package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Num is a numeric settings field. NaN is the "unset" value and is encoded
// as JSON null. Numbers may also arrive as strings (form input).
type Num float64

// Unset is the sentinel for a numeric field without a value.
var Unset = Num(math.NaN())

// IsSet reports whether n holds a finite value.
func (n Num) IsSet() bool {
	f := float64(n)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Or returns n as float64, or def if n is unset.
func (n Num) Or(def float64) float64 {
	if !n.IsSet() {
		return def
	}
	return float64(n)
}

// Float returns the raw value (possibly NaN).
func (n Num) Float() float64 {
	return float64(n)
}

// MarshalJSON implements json.Marshaler.
func (n Num) MarshalJSON() ([]byte, error) {
	if !n.IsSet() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(n), 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler. null, "" and anything that does
// not parse as a number become Unset.
func (n *Num) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*n = Unset
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = Unset
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*n = Unset
			return nil
		}
		*n = Num(f)
		return nil
	}
	if data[0] == 't' || data[0] == 'f' {
		if data[0] == 't' {
			*n = 1
		} else {
			*n = 0
		}
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*n = Unset
		return nil
	}
	*n = Num(f)
	return nil
}

// Flag is a boolean settings field. It accepts JSON booleans, numbers and
// the strings "true", "on", "1" (checkbox form values).
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*f = true
		return nil
	case "false", "null", "":
		*f = false
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "on", "1", "yes":
			*f = true
		default:
			*f = false
		}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	*f = Flag(err == nil && v != 0)
	return nil
}

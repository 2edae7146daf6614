package metadata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errZeroDenominator = errors.New("zero denominator")
	errMissingField    = errors.New("missing field")
)

// Rational is an EXIF RATIONAL or SRATIONAL value.
type Rational struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// Float divides the rational as floating point.
func (r Rational) Float() (float64, error) {
	if r.Den == 0 {
		return 0, fmt.Errorf("rational %d/%d: %w", r.Num, r.Den, errZeroDenominator)
	}
	return float64(r.Num) / float64(r.Den), nil
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// ToFloat converts a raw EXIF component to float64. Rationals are divided, other
// numbers are coerced, and numeric strings are parsed.
func ToFloat(v any) (float64, error) {
	switch t := v.(type) {
	case Rational:
		return t.Float()
	case *Rational:
		if t == nil {
			return 0, errors.New("nil rational")
		}
		return t.Float()
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", t, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// components flattens a degrees/minutes/seconds value into its parts.
func components(dms any) ([]any, error) {
	switch t := dms.(type) {
	case []any:
		return t, nil
	case []Rational:
		out := make([]any, len(t))
		for i, r := range t {
			out[i] = r
		}
		return out, nil
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, nil
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, nil
	case nil:
		return nil, errMissingField
	default:
		return nil, fmt.Errorf("unexpected DMS type %T", dms)
	}
}

// DMSToDecimal converts a (degrees, minutes, seconds) triple and its hemisphere reference
// to signed decimal degrees. References "S" and "W" negate the result.
func DMSToDecimal(dms any, ref any) (float64, error) {
	parts, err := components(dms)
	if err != nil {
		return 0, err
	}
	if len(parts) < 3 {
		return 0, fmt.Errorf("want 3 DMS components, got %d", len(parts))
	}

	var v [3]float64
	for i := range v {
		v[i], err = ToFloat(parts[i])
		if err != nil {
			return 0, fmt.Errorf("component %d: %w", i, err)
		}
	}

	r, ok := ref.(string)
	if !ok {
		return 0, fmt.Errorf("reference %v: %w", ref, errMissingField)
	}

	decimal := v[0] + v[1]/60 + v[2]/3600
	if r == "S" || r == "W" {
		decimal = -decimal
	}
	return decimal, nil
}

// Coordinates decodes decimal latitude and longitude from a GPS block. Either both
// axes decode or an error is returned.
func Coordinates(gps *GPSBlock) (lat float64, lon float64, err error) {
	if gps == nil {
		return 0, 0, fmt.Errorf("gps: %w", errMissingField)
	}

	get := func(name string) any {
		v, _ := gps.Get(name)
		return v
	}

	lat, err = DMSToDecimal(get("GPSLatitude"), get("GPSLatitudeRef"))
	if err != nil {
		return 0, 0, fmt.Errorf("latitude: %w", err)
	}

	lon, err = DMSToDecimal(get("GPSLongitude"), get("GPSLongitudeRef"))
	if err != nil {
		return 0, 0, fmt.Errorf("longitude: %w", err)
	}
	return lat, lon, nil
}

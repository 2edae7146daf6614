package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDMSToDecimal(t *testing.T) {
	tests := []struct {
		name    string
		dms     any
		ref     any
		want    float64
		wantErr bool
	}{
		{
			name: "rational north",
			dms:  []Rational{{48, 1}, {51, 1}, {205, 10}},
			ref:  "N",
			want: 48 + 51.0/60 + 20.5/3600,
		},
		{
			name: "rational south",
			dms:  []Rational{{33, 1}, {52, 1}, {4, 1}},
			ref:  "S",
			want: -(33 + 52.0/60 + 4.0/3600),
		},
		{
			name: "west",
			dms:  []Rational{{122, 1}, {25, 1}, {0, 1}},
			ref:  "W",
			want: -(122 + 25.0/60),
		},
		{
			name: "plain numbers",
			dms:  []any{10, 30.0, int64(36)},
			ref:  "E",
			want: 10.51,
		},
		{
			name: "numeric strings",
			dms:  []any{"1", "30", "0"},
			ref:  "N",
			want: 1.5,
		},
		{
			name: "rationals are not truncated",
			dms:  []Rational{{1, 3}, {0, 1}, {0, 1}},
			ref:  "N",
			want: 1.0 / 3,
		},
		{
			name: "extra components ignored",
			dms:  []float64{1, 0, 0, 99},
			ref:  "N",
			want: 1,
		},
		{
			name:    "zero denominator",
			dms:     []Rational{{48, 0}, {51, 1}, {0, 1}},
			ref:     "N",
			wantErr: true,
		},
		{
			name:    "too few components",
			dms:     []Rational{{48, 1}, {51, 1}},
			ref:     "N",
			wantErr: true,
		},
		{
			name:    "missing reference",
			dms:     []Rational{{48, 1}, {51, 1}, {0, 1}},
			ref:     nil,
			wantErr: true,
		},
		{
			name:    "missing value",
			dms:     nil,
			ref:     "N",
			wantErr: true,
		},
		{
			name:    "garbage component",
			dms:     []any{"north", 1, 2},
			ref:     "N",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DMSToDecimal(tc.dms, tc.ref)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestDMSToDecimalParisExample(t *testing.T) {
	got, err := DMSToDecimal([]Rational{{48, 1}, {51, 1}, {205, 10}}, "N")
	require.NoError(t, err)
	assert.InDelta(t, 48.8557, got, 1e-4)
}

func TestCoordinatesBothOrNeither(t *testing.T) {
	full := NewGPSBlock()
	full.Set("GPSLatitudeRef", "N")
	full.Set("GPSLatitude", []Rational{{48, 1}, {51, 1}, {205, 10}})
	full.Set("GPSLongitudeRef", "W")
	full.Set("GPSLongitude", []Rational{{2, 1}, {21, 1}, {792, 100}})

	lat, lon, err := Coordinates(full)
	require.NoError(t, err)
	assert.InDelta(t, 48.855694, lat, 1e-6)
	assert.InDelta(t, -2.3522, lon, 1e-6)

	latOnly := NewGPSBlock()
	latOnly.Set("GPSLatitudeRef", "N")
	latOnly.Set("GPSLatitude", []Rational{{48, 1}, {51, 1}, {205, 10}})

	_, _, err = Coordinates(latOnly)
	assert.Error(t, err)

	_, _, err = Coordinates(nil)
	assert.Error(t, err)
}

func TestToFloat(t *testing.T) {
	f, err := ToFloat(Rational{Num: 7, Den: 2})
	require.NoError(t, err)
	assert.Equal(t, 3.5, f)

	_, err = ToFloat(Rational{Num: 7})
	assert.ErrorIs(t, err, errZeroDenominator)

	_, err = ToFloat(struct{}{})
	assert.Error(t, err)
}

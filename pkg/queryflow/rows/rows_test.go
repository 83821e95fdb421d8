package rows

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 30, 0, 0, time.FixedZone("CET", 3600))
	id := uuid.MustParse("8f14e45f-ceea-467f-a0b5-9d5b1a6f2c11")

	tests := []struct {
		name   string
		value  any
		dbType string
		want   any
	}{
		{"nil", nil, "", nil},
		{"int64", int64(42), "BIGINT", int64(42)},
		{"bool", true, "", true},
		{"float", 1.5, "REAL", 1.5},
		{"NaN", math.NaN(), "", "NaN"},
		{"positive infinity", math.Inf(1), "", "Infinity"},
		{"plain string", "Ada", "TEXT", "Ada"},
		{"decimal bytes", []byte("1234.50"), "DECIMAL", 1234.5},
		{"numeric with precision", []byte("0.125"), "numeric(10,3)", 0.125},
		{"decimal string", "99.99", "NUMERIC", 99.99},
		{"decimal out of float range", "1e400", "DECIMAL", "1e400"},
		{"text bytes", []byte("hello"), "VARCHAR", "hello"},
		{"binary bytes", []byte{0xff, 0xfe}, "BLOB", "//4="},
		{"timestamp", ts, "TIMESTAMP", "2024-03-09T13:30:00Z"},
		{"date column", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), "DATE", "2024-03-09"},
		{"json number", json.Number("12.25"), "", 12.25},
		{"big int", big.NewInt(7), "", int64(7)},
		{"big float", big.NewFloat(2.5), "", 2.5},
		{"big rat", big.NewRat(1, 4), "", 0.25},
		{"uuid array", [16]byte(id), "", id.String()},
		{"uuid", id, "UUID", id.String()},
		{"nested", map[string]any{"a": []any{[]byte("x"), 1.0}}, "JSONB", map[string]any{"a": []any{"x", 1.0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.value, tt.dbType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_PgtypeNumeric(t *testing.T) {
	var n pgtype.Numeric
	require.NoError(t, n.Scan("1234.56"))

	got, err := Normalize(n, "numeric")
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, got, 1e-9)

	got, err = Normalize(pgtype.Numeric{NaN: true, Valid: true}, "numeric")
	require.NoError(t, err)
	assert.Equal(t, "NaN", got)

	got, err = Normalize(pgtype.Numeric{}, "numeric")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNormalize_PgtypeDate(t *testing.T) {
	d := pgtype.Date{Time: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), Valid: true}
	got, err := Normalize(d, "date")
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", got)
}

func TestNormalize_PgtypeTime(t *testing.T) {
	tod := pgtype.Time{Microseconds: 3600e6, Valid: true}
	midday := pgtype.Time{Microseconds: 12*3600e6 + 34*60e6 + 56789e3, Valid: true}

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"hour", tod, "01:00:00"},
		{"fractional seconds", midday, "12:34:56.789"},
		{"pointer", &midday, "12:34:56.789"},
		{"end of day", pgtype.Time{Microseconds: 24 * 3600e6, Valid: true}, "24:00:00"},
		{"null", pgtype.Time{}, nil},
		{"nil pointer", (*pgtype.Time)(nil), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.value, "time")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_PgtypeInterval(t *testing.T) {
	full := pgtype.Interval{Months: 14, Days: 3, Microseconds: 4*3600e6 + 5*60e6 + 6500e3, Valid: true}

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"days", pgtype.Interval{Days: 2, Valid: true}, "P2D"},
		{"all components", full, "P1Y2M3DT4H5M6.5S"},
		{"pointer", &full, "P1Y2M3DT4H5M6.5S"},
		{"negative time", pgtype.Interval{Microseconds: -90e6, Valid: true}, "PT-1M-30S"},
		{"sub-second", pgtype.Interval{Microseconds: -500e3, Valid: true}, "PT-0.5S"},
		{"zero", pgtype.Interval{Valid: true}, "PT0S"},
		{"null", pgtype.Interval{}, nil},
		{"nil pointer", (*pgtype.Interval)(nil), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.value, "interval")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_JSONNumberKeepsIntegers(t *testing.T) {
	got, err := Normalize(json.Number("9007199254740993"), "")
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), got)

	got, err = Normalize(json.Number("18446744073709551615"), "")
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)

	got, err = Normalize(json.Number("2.5"), "")
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)
}

func TestNormalize_InvalidDecimal(t *testing.T) {
	_, err := Normalize([]byte("twelve"), "DECIMAL")
	assert.Error(t, err)
}

func TestNormalize_Unsupported(t *testing.T) {
	_, err := Normalize(struct{ X int }{1}, "")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

// TestNormalizeAll_RoundTrip checks that normalized rows encode to JSON and
// decode to equal values.
func TestNormalizeAll_RoundTrip(t *testing.T) {
	in := []Row{
		{"region": []byte("EMEA"), "revenue": []byte("1050.25"), "closed_at": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"region": []byte("APAC"), "revenue": []byte("0.10"), "closed_at": nil},
	}
	types := map[string]string{"region": "VARCHAR", "revenue": "DECIMAL", "closed_at": "DATETIME"}

	got, err := NormalizeAll(in, types)
	require.NoError(t, err)

	data, err := json.Marshal(got)
	require.NoError(t, err)

	var decoded []Row
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, got, decoded)
	assert.Equal(t, 1050.25, decoded[0]["revenue"])
	assert.Equal(t, "2024-01-02T03:04:05Z", decoded[0]["closed_at"])
}

func TestNormalizeAll_FailsWhole(t *testing.T) {
	in := []Row{{"v": []byte("1")}, {"v": []byte("oops")}}
	got, err := NormalizeAll(in, map[string]string{"v": "DECIMAL"})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "row 1")
}

func TestHead(t *testing.T) {
	rs := []Row{{"i": 1}, {"i": 2}, {"i": 3}}

	assert.Len(t, Head(rs, 2), 2)
	assert.Len(t, Head(rs, 10), 3)
	assert.Len(t, Head(rs, -1), 3)
	assert.Empty(t, Head(nil, 5))

	h := Head(rs, 2)
	h = append(h, Row{"i": 99})
	assert.Equal(t, 3, rs[2]["i"])
	assert.Len(t, h, 3)
}

func TestClone(t *testing.T) {
	rs := []Row{{"a": 1}}
	c := Clone(rs)
	c[0]["a"] = 2
	assert.Equal(t, 1, rs[0]["a"])
	assert.Nil(t, Clone(nil))
}

// Package rows normalizes values read from a data store into representations
// that survive JSON encoding without loss beyond float64 rounding.
//
// Exact-decimal values become float64, or a decimal string when the value
// cannot be held by a finite float64. Date and time values become RFC 3339
// strings (DATE columns use the 2006-01-02 form), times of day use the
// 15:04:05.999999 form and intervals become ISO 8601 durations. Binary values
// become strings
// (UTF-8 text as-is, anything else base64). Values JSON cannot carry, such as
// NaN, become strings.
package rows

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// DateLayout is the canonical form for DATE columns.
const DateLayout = "2006-01-02"

// ErrUnsupportedType indicates a value has no JSON-safe representation.
var ErrUnsupportedType = errors.New("unsupported value type")

// Normalize converts v into its canonical representation.
// dbType is the driver-reported column type name and may be empty; it is
// used to recognise exact-decimal and date columns that drivers return as
// text or bytes.
func Normalize(v any, dbType string) (any, error) {
	kind := classifyType(dbType)

	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return val, nil
	case float32:
		return normalizeFloat(float64(val)), nil
	case float64:
		return normalizeFloat(val), nil
	case string:
		if kind == typeDecimal {
			return parseDecimal(val)
		}
		return val, nil
	case []byte:
		if kind == typeDecimal {
			return parseDecimal(string(val))
		}
		if utf8.Valid(val) {
			return string(val), nil
		}
		return base64.StdEncoding.EncodeToString(val), nil
	case time.Time:
		return formatTime(val, kind), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return formatTime(*val, kind), nil
	case json.Number:
		if i, err := strconv.ParseInt(val.String(), 10, 64); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(val.String(), 10, 64); err == nil {
			return u, nil
		}
		return parseDecimal(val.String())
	case *big.Int:
		if val == nil {
			return nil, nil
		}
		if val.IsInt64() {
			return val.Int64(), nil
		}
		return parseDecimal(val.String())
	case *big.Float:
		if val == nil {
			return nil, nil
		}
		return parseDecimal(val.Text('g', -1))
	case *big.Rat:
		if val == nil {
			return nil, nil
		}
		f, _ := val.Float64()
		if math.IsInf(f, 0) {
			return val.FloatString(20), nil
		}
		return f, nil
	case pgtype.Numeric:
		return normalizeNumeric(val)
	case *pgtype.Numeric:
		if val == nil {
			return nil, nil
		}
		return normalizeNumeric(*val)
	case pgtype.Date:
		if !val.Valid {
			return nil, nil
		}
		if val.InfinityModifier != pgtype.Finite {
			return val.InfinityModifier.String(), nil
		}
		return val.Time.Format(DateLayout), nil
	case pgtype.Timestamptz:
		if !val.Valid {
			return nil, nil
		}
		if val.InfinityModifier != pgtype.Finite {
			return val.InfinityModifier.String(), nil
		}
		return formatTime(val.Time, kind), nil
	case pgtype.Timestamp:
		if !val.Valid {
			return nil, nil
		}
		if val.InfinityModifier != pgtype.Finite {
			return val.InfinityModifier.String(), nil
		}
		return formatTime(val.Time, kind), nil
	case pgtype.Time:
		return formatTimeOfDay(val), nil
	case *pgtype.Time:
		if val == nil {
			return nil, nil
		}
		return formatTimeOfDay(*val), nil
	case pgtype.Interval:
		return formatInterval(val), nil
	case *pgtype.Interval:
		if val == nil {
			return nil, nil
		}
		return formatInterval(*val), nil
	case [16]byte:
		return uuid.UUID(val).String(), nil
	case uuid.UUID:
		return val.String(), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := Normalize(item, "")
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			n, err := Normalize(item, "")
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case fmt.Stringer:
		return val.String(), nil
	}

	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

// NormalizeRow normalizes every value of r into a new Row.
// columnTypes maps column names to driver type names; it may be nil.
func NormalizeRow(r Row, columnTypes map[string]string) (Row, error) {
	out := make(Row, len(r))
	for col, v := range r {
		n, err := Normalize(v, columnTypes[col])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		out[col] = n
	}
	return out, nil
}

// NormalizeAll normalizes a full result set. Either every row is converted
// or an error is returned and no rows are.
func NormalizeAll(rs []Row, columnTypes map[string]string) ([]Row, error) {
	out := make([]Row, 0, len(rs))
	for i, r := range rs {
		n, err := NormalizeRow(r, columnTypes)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Head returns at most n leading rows. The returned slice shares no backing
// array with rs.
func Head(rs []Row, n int) []Row {
	if n < 0 || n > len(rs) {
		n = len(rs)
	}
	out := make([]Row, n)
	copy(out, rs[:n])
	return out
}

// Clone returns a copy of rs with each row map copied.
func Clone(rs []Row) []Row {
	if rs == nil {
		return nil
	}
	out := make([]Row, len(rs))
	for i, r := range rs {
		c := make(Row, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}

type typeKind int

const (
	typeOther typeKind = iota
	typeDecimal
	typeDate
)

func classifyType(dbType string) typeKind {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "DECIMAL", "NUMERIC", "NUMBER", "MONEY", "NEWDECIMAL", "DEC", "FIXED":
		return typeDecimal
	case "DATE":
		return typeDate
	}
	return typeOther
}

func formatTime(t time.Time, kind typeKind) string {
	if kind == typeDate {
		return t.Format(DateLayout)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// TimeOfDayLayout is the canonical form for TIME columns.
const TimeOfDayLayout = "15:04:05.999999"

const microsPerDay = 24 * 60 * 60 * 1_000_000

func formatTimeOfDay(t pgtype.Time) any {
	if !t.Valid {
		return nil
	}
	// Postgres accepts 24:00:00 as a time of day.
	if t.Microseconds == microsPerDay {
		return "24:00:00"
	}
	d := time.Duration(t.Microseconds) * time.Microsecond
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(d).Format(TimeOfDayLayout)
}

// formatInterval renders an interval as an ISO 8601 duration. Components keep
// their own sign, as Postgres does in its iso_8601 interval style.
func formatInterval(iv pgtype.Interval) any {
	if !iv.Valid {
		return nil
	}

	var b strings.Builder
	b.WriteString("P")
	if years := iv.Months / 12; years != 0 {
		fmt.Fprintf(&b, "%dY", years)
	}
	if months := iv.Months % 12; months != 0 {
		fmt.Fprintf(&b, "%dM", months)
	}
	if iv.Days != 0 {
		fmt.Fprintf(&b, "%dD", iv.Days)
	}

	us := iv.Microseconds
	if us != 0 {
		b.WriteString("T")
		hours := us / 3_600_000_000
		us -= hours * 3_600_000_000
		minutes := us / 60_000_000
		us -= minutes * 60_000_000
		if hours != 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes != 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if us != 0 {
			b.WriteString(formatSeconds(us) + "S")
		}
	}

	if b.Len() == 1 {
		return "PT0S"
	}
	return b.String()
}

func formatSeconds(us int64) string {
	sign := ""
	if us < 0 {
		sign = "-"
		us = -us
	}
	whole, frac := us/1_000_000, us%1_000_000
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	return strings.TrimRight(fmt.Sprintf("%s%d.%06d", sign, whole, frac), "0")
}

func normalizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

// parseDecimal converts decimal text to float64, keeping the text when the
// magnitude does not fit a finite float64.
func parseDecimal(s string) (any, error) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return normalizeFloat(f), nil
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
		return s, nil
	}
	return nil, fmt.Errorf("parse decimal %q: %w", s, err)
}

func normalizeNumeric(n pgtype.Numeric) (any, error) {
	if !n.Valid {
		return nil, nil
	}
	if n.NaN {
		return "NaN", nil
	}
	switch n.InfinityModifier {
	case pgtype.Infinity:
		return "Infinity", nil
	case pgtype.NegativeInfinity:
		return "-Infinity", nil
	}
	f, err := n.Float64Value()
	if err != nil {
		return nil, fmt.Errorf("numeric to float: %w", err)
	}
	if !f.Valid {
		return nil, nil
	}
	if math.IsInf(f.Float64, 0) {
		text, err := n.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("numeric to text: %w", err)
		}
		return string(text), nil
	}
	return f.Float64, nil
}

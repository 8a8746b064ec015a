package query

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cast"
)

var (
	integerPattern = regexp.MustCompile(`^-?\d+$`)
	decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

	// clockLayouts are tried before full timestamps when casting time-of-day values
	clockLayouts = []string{
		"15:04:05.999999999",
		"15:04:05",
		"15:04",
		"3:04:05PM",
		"3:04:05 PM",
		"3:04PM",
		"3:04 PM",
	}
)

var errNotCastable = errors.New("value cannot be cast")

func castUntyped(raw any) (any, error) {
	return raw, nil
}

func castString(raw any) (any, error) {
	s, err := cast.ToStringE(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotCastable, err)
	}
	return s, nil
}

func castInteger(raw any) (any, error) {
	if n, ok := integerValue(raw); ok {
		return n, nil
	}

	switch v := raw.(type) {
	case string:
		if !integerPattern.MatchString(v) {
			return nil, errNotCastable
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errNotCastable, err)
		}
		return n, nil
	case float32:
		return truncate(float64(v))
	case float64:
		return truncate(v)
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil, errNotCastable
		}
		return truncate(f.Float64)
	default:
		return nil, errNotCastable
	}
}

func truncate(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, errNotCastable
	}
	return int64(f), nil
}

func castDecimal(raw any) (any, error) {
	if n, ok := integerValue(raw); ok {
		return pgtype.Numeric{Int: big.NewInt(n), Valid: true}, nil
	}

	switch v := raw.(type) {
	case pgtype.Numeric:
		if !v.Valid || v.NaN || v.InfinityModifier != pgtype.Finite {
			return nil, errNotCastable
		}
		return v, nil
	case uint64:
		return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}, nil
	case float32:
		return numericFromFloat(float64(v))
	case float64:
		return numericFromFloat(v)
	case string:
		if !decimalPattern.MatchString(v) {
			return nil, errNotCastable
		}
		return numericFromString(v)
	default:
		return nil, errNotCastable
	}
}

func numericFromFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errNotCastable
	}
	return numericFromString(strconv.FormatFloat(f, 'f', -1, 64))
}

// numericFromString scans plain decimal text. pgtype does not read exponents,
// so a trailing e/E part is folded into the Numeric exponent.
func numericFromString(s string) (any, error) {
	var shift int64
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		e, err := strconv.ParseInt(s[i+1:], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errNotCastable, err)
		}
		s, shift = s[:i], e
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return nil, fmt.Errorf("%w: %v", errNotCastable, err)
	}

	exp := int64(n.Exp) + shift
	if exp < math.MinInt32 || exp > math.MaxInt32 {
		return nil, errNotCastable
	}
	n.Exp = int32(exp)
	return n, nil
}

func castBoolean(raw any) (any, error) {
	if n, ok := integerValue(raw); ok {
		switch n {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
		return nil, errNotCastable
	}

	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "true", "1", "t":
			return true, nil
		case "false", "0", "f":
			return false, nil
		}
	}
	return nil, errNotCastable
}

func castDate(raw any) (any, error) {
	t, err := timestamp(raw)
	if err != nil {
		return nil, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func castDateTime(raw any) (any, error) {
	t, err := timestamp(raw)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func castTime(raw any) (any, error) {
	switch v := raw.(type) {
	case pgtype.Time:
		if !v.Valid {
			return nil, errNotCastable
		}
		return v, nil
	case time.Time:
		return clock(v), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range clockLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return clock(t), nil
			}
		}
		t, err := timestamp(s)
		if err != nil {
			return nil, err
		}
		return clock(t), nil
	default:
		return nil, errNotCastable
	}
}

// timestamp accepts time.Time values and strings in any layout spf13/cast knows.
// Numbers are rejected on purpose: a bare integer is not a date.
func timestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := cast.ToTimeE(strings.TrimSpace(v))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", errNotCastable, err)
		}
		return t, nil
	default:
		return time.Time{}, errNotCastable
	}
}

func clock(t time.Time) pgtype.Time {
	seconds := int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
	return pgtype.Time{
		Microseconds: seconds*1_000_000 + int64(t.Nanosecond()/1000),
		Valid:        true,
	}
}

// integerValue widens any signed or unsigned Go integer that fits into int64.
func integerValue(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

package stdlib

import (
	"fmt"
	"time"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// AddTime implements ADD_TIME / ADD_TOD_TIME / ADD_DT_TIME per operand kind.
func AddTime(reg *types.Registry, a, b storage.Value) (storage.Value, error) {
	switch a.Kind {
	case storage.KindDuration:
		if b.Kind != storage.KindDuration {
			return storage.Value{}, fmt.Errorf("ADD_TIME requires two durations")
		}
		return storage.Duration(a.Type, a.Dur+b.Dur), nil
	case storage.KindDate:
		if b.Kind != storage.KindDuration {
			return storage.Value{}, fmt.Errorf("ADD_*_TIME requires a duration as the second operand")
		}
		return storage.DateTime(a.Type, a.T.Add(b.Dur)), nil
	default:
		return storage.Value{}, fmt.Errorf("ADD_TIME family requires a duration or date-like first operand")
	}
}

// SubTime implements SUB_TIME / SUB_TOD_TIME / SUB_DT_TIME / SUB_DATE_DATE.
func SubTime(a, b storage.Value) (storage.Value, error) {
	switch a.Kind {
	case storage.KindDuration:
		if b.Kind != storage.KindDuration {
			return storage.Value{}, fmt.Errorf("SUB_TIME requires two durations")
		}
		return storage.Duration(a.Type, a.Dur-b.Dur), nil
	case storage.KindDate:
		switch b.Kind {
		case storage.KindDuration:
			return storage.DateTime(a.Type, a.T.Add(-b.Dur)), nil
		case storage.KindDate:
			return storage.Duration(types.Time, a.T.Sub(b.T)), nil
		}
	}
	return storage.Value{}, fmt.Errorf("unsupported SUB_TIME operand combination")
}

// MulTime implements MUL_TIME (duration * scalar).
func MulTime(d storage.Value, factor float64) (storage.Value, error) {
	if d.Kind != storage.KindDuration {
		return storage.Value{}, fmt.Errorf("MUL_TIME requires a duration operand")
	}
	scaled := roundTiesToEven(float64(d.Dur) * factor)
	return storage.Duration(d.Type, time.Duration(scaled)), nil
}

// DivTime implements DIV_TIME (duration / scalar), round-ties-to-even per §4.7.
func DivTime(d storage.Value, divisor float64) (storage.Value, error) {
	if d.Kind != storage.KindDuration {
		return storage.Value{}, fmt.Errorf("DIV_TIME requires a duration operand")
	}
	if divisor == 0 {
		return storage.Value{}, ErrDivisionByZero
	}
	scaled := roundTiesToEven(float64(d.Dur) / divisor)
	return storage.Duration(d.Type, time.Duration(scaled)), nil
}

// ConcatDate implements CONCAT_DATE(Y, M, D) -> DATE.
func ConcatDate(y, m, d int64) storage.Value {
	t := time.Date(int(y), time.Month(m), int(d), 0, 0, 0, 0, time.UTC)
	return storage.DateTime(types.Date, t)
}

// ConcatTod implements CONCAT_TOD(H, M, S, MS) -> TOD.
func ConcatTod(h, m, s, ms int64) storage.Value {
	t := time.Date(0, 1, 1, int(h), int(m), int(s), int(ms)*1e6, time.UTC)
	return storage.DateTime(types.Tod, t)
}

// ConcatDT implements CONCAT_DATE_TOD(DATE, TOD) -> DT.
func ConcatDT(date, tod storage.Value) storage.Value {
	d, t := date.T, tod.T
	merged := time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return storage.DateTime(types.Dt, merged)
}

// SplitDate implements SPLIT_DATE: DATE/DT -> (Y, M, D).
func SplitDate(v storage.Value) (y, m, d int64) {
	return int64(v.T.Year()), int64(v.T.Month()), int64(v.T.Day())
}

// SplitTod implements SPLIT_TOD: TOD/DT -> (H, M, S, MS).
func SplitTod(v storage.Value) (h, m, s, ms int64) {
	return int64(v.T.Hour()), int64(v.T.Minute()), int64(v.T.Second()), int64(v.T.Nanosecond() / 1e6)
}

// DayOfWeek implements DAY_OF_WEEK: 0 (Sunday) .. 6 (Saturday).
func DayOfWeek(v storage.Value) int64 {
	return int64(v.T.Weekday())
}

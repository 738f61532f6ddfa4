// Package match compares expected document values against the values a
// fixture returned.
package match

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Kind is the runtime type of an actual value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindUnknown
)

var kindNames = [...]string{"null", "string", "int", "float", "bool", "time", "unknown"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// TimeLayout is the display form of time values.
const TimeLayout = "2006-01-02 15:04:05"

// Value is an actual result value returned by a fixture.
type Value struct {
	kind Kind
	text string // display form; also the numeric text for ints and floats
	b    bool
	t    time.Time
}

func Null() Value { return Value{kind: KindNull} }
func String(s string) Value { return Value{kind: KindString, text: s} }
func Int(i int64) Value { return Value{kind: KindInt, text: strconv.FormatInt(i, 10)} }
func Float(f float64) Value { return Value{kind: KindFloat, text: cast.ToString(f)} }
func Decimal(d decimal.Decimal) Value { return Value{kind: KindFloat, text: d.String()} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b, text: strconv.FormatBool(b)} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t, text: t.Format(TimeLayout)} }

// ValueOf converts a value returned by a fixture into a Value.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case string:
		return String(x)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Value{kind: KindInt, text: cast.ToString(x)}
	case float32, float64:
		return Value{kind: KindFloat, text: cast.ToString(x)}
	case decimal.Decimal:
		return Decimal(x)
	case bool:
		return Bool(x)
	case time.Time:
		return Time(x)
	case *time.Time:
		if x == nil {
			return Null()
		}
		return Time(*x)
	default:
		return Value{kind: KindUnknown, text: fmt.Sprint(x)}
	}
}

// Values converts a fixture result row.
func Values(row map[string]any) map[string]Value {
	if row == nil {
		return nil
	}
	out := make(map[string]Value, len(row))
	for k, v := range row {
		out[k] = ValueOf(v)
	}
	return out
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// String returns the display form of v. Null displays as "".
func (v Value) String() string { return v.text }

// Time returns the time held by a KindTime value.
func (v Value) Time() time.Time { return v.t }

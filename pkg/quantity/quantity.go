// Package quantity normalizes material and allocation quantities into a
// fixed-point decimal representation with four fractional digits.
package quantity

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every quantity carries.
const Scale int32 = 4

// Epsilon is the tolerance under which two quantities compare equal.
var Epsilon = decimal.New(1, -Scale)

// Zero is the normalized zero quantity.
var Zero = decimal.Zero

// Normalize rounds d to Scale fractional digits.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Equal reports whether a and b differ by no more than Epsilon.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// Exceeds reports whether a is greater than b by more than Epsilon.
func Exceeds(a, b decimal.Decimal) bool {
	return a.Sub(b).GreaterThan(Epsilon)
}

// AtLeast reports whether a >= b within tolerance.
func AtLeast(a, b decimal.Decimal) bool {
	return !Exceeds(b, a)
}

// Positive reports whether d is greater than zero beyond tolerance.
func Positive(d decimal.Decimal) bool {
	return Exceeds(d, Zero)
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return Zero
	}
	return d
}

// Sum adds the supplied quantities.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Parse converts a loosely typed value (number, numeric text, json.Number)
// into a normalized decimal. The boolean is false when the value is absent or
// is not a finite number. A lone comma followed by exactly three digits is a
// thousands separator ("1,200" is 1200).
func Parse(value any) (decimal.Decimal, bool) {
	return parse(value, false)
}

// ParseRate is Parse for per-unit rates such as consumption, which never
// reach the thousands: a lone comma is always a decimal comma ("1,234" is
// 1.234).
func ParseRate(value any) (decimal.Decimal, bool) {
	return parse(value, true)
}

func parse(value any, decimalComma bool) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return Zero, false
	case decimal.Decimal:
		return Normalize(v), true
	case *decimal.Decimal:
		if v == nil {
			return Zero, false
		}
		return Normalize(*v), true
	case float64:
		return fromFloat(v)
	case float32:
		return fromFloat(float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case uint:
		return decimal.NewFromInt(int64(v)), true
	case json.Number:
		return parseText(string(v), decimalComma)
	case string:
		return parseText(v, decimalComma)
	case *string:
		if v == nil {
			return Zero, false
		}
		return parseText(*v, decimalComma)
	default:
		return Zero, false
	}
}

// ParseOrZero is Parse with a zero fallback.
func ParseOrZero(value any) decimal.Decimal {
	return orZero(Parse(value))
}

// ParseRateOrZero is ParseRate with a zero fallback.
func ParseRateOrZero(value any) decimal.Decimal {
	return orZero(ParseRate(value))
}

func orZero(d decimal.Decimal, ok bool) decimal.Decimal {
	if !ok {
		return Zero
	}
	return d
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Zero, false
	}
	return Normalize(decimal.NewFromFloat(f)), true
}

func parseText(raw string, decimalComma bool) (decimal.Decimal, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Zero, false
	}
	text = normalizeSeparators(text, decimalComma)
	d, err := decimal.NewFromString(text)
	if err != nil {
		return Zero, false
	}
	return Normalize(d), true
}

// normalizeSeparators strips thousands separators. A lone comma that is not
// followed by exactly three digits is read as a decimal comma ("0,5"), and so
// is every lone comma when decimalComma is set.
func normalizeSeparators(text string, decimalComma bool) string {
	text = strings.ReplaceAll(text, "_", "")
	if strings.Count(text, ",") == 1 && !strings.Contains(text, ".") {
		idx := strings.Index(text, ",")
		if decimalComma || len(text)-idx-1 != 3 {
			return strings.Replace(text, ",", ".", 1)
		}
	}
	return strings.ReplaceAll(text, ",", "")
}

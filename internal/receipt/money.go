package receipt

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal coerces a JSON value (string, number, or nil) into an exact
// decimal. ok=false means the value was present but unusable; callers default
// to zero and record a warning rather than discarding the receipt.
func ParseDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, true
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") {
			return decimal.Zero, true
		}
		// OCR output writes decimal commas and stray currency suffixes.
		s = strings.ReplaceAll(s, ",", ".")
		s = strings.TrimSuffix(strings.ToLower(s), "zł")
		s = strings.TrimSuffix(strings.ToLower(s), "pln")
		s = strings.TrimSpace(s)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

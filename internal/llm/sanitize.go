package llm

import (
	"fmt"
	"strings"
)

var itemMoneyKeys = []string{"quantity", "unit_price", "line_total", "discount", "price_after_discount"}

// SanitizeExtraction normalizes a repaired extraction object in place so it
// can pass schema validation: numeric money fields become two-decimal strings,
// null optionals are dropped, and common key synonyms are renamed. Returns the
// list of adjustments for logging.
func SanitizeExtraction(m map[string]any) []string {
	var changed []string

	rename := func(obj map[string]any, from, to string) {
		if v, ok := obj[from]; ok {
			if _, exists := obj[to]; !exists {
				obj[to] = v
			}
			delete(obj, from)
			changed = append(changed, from+"->"+to)
		}
	}

	rename(m, "shop", "store")
	rename(m, "receipt", "purchase")
	rename(m, "products", "items")
	rename(m, "lines", "items")

	if p, ok := m["purchase"].(map[string]any); ok {
		rename(p, "total", "declared_total")
		rename(p, "purchase_date", "date")
		if coerceDecimalString(p, "declared_total") {
			changed = append(changed, "purchase.declared_total")
		}
	}

	items, ok := m["items"].([]any)
	if !ok {
		return changed
	}
	for i, raw := range items {
		it, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rename(it, "name", "raw_name")
		rename(it, "description", "raw_name")
		rename(it, "price", "unit_price")
		rename(it, "total", "line_total")
		rename(it, "final_price", "price_after_discount")
		for _, k := range itemMoneyKeys {
			if coerceDecimalString(it, k) {
				changed = append(changed, fmt.Sprintf("items[%d].%s", i, k))
			}
		}
	}
	return changed
}

// coerceDecimalString turns numeric or noisy values into the exact-decimal
// string form the schema expects. Reports whether anything changed.
func coerceDecimalString(obj map[string]any, key string) bool {
	v, ok := obj[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case nil:
		delete(obj, key)
		return true
	case float64:
		obj[key] = trimDecimal(fmt.Sprintf("%.2f", t))
		return true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if s == "" || strings.EqualFold(s, "null") {
			delete(obj, key)
			return true
		}
		if s != t {
			obj[key] = s
			return true
		}
		return false
	default:
		delete(obj, key)
		return true
	}
}

func trimDecimal(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

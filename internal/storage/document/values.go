// Package document содержит общие для всех бэкендов хранения помощники:
// приведение значений полей, фильтрацию, сортировку и слияние документов.
package document

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Normalize приводит документ к JSON-совместимому виду (числа float64, время RFC3339Nano,
// вложенные значения map[string]any и []any). Так ведут себя local и postgres, и memory
// повторяет то же поведение.
func Normalize(doc domain.Document) (domain.Document, error) {
	if doc == nil {
		return domain.Document{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return Decode(raw)
}

// Decode разбирает JSON-тело документа.
func Decode(raw []byte) (domain.Document, error) {
	out := domain.Document{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

// Merge переносит поля верхнего уровня src в копию dst.
func Merge(dst, src domain.Document) domain.Document {
	out := make(domain.Document, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// AsString приводит значение поля к строке; nil даёт пустую строку.
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// AsInt приводит числовое значение к int; нечисловые значения дают 0.
func AsInt(v any) int {
	f, ok := AsFloat(v)
	if !ok {
		return 0
	}
	return int(math.Round(f))
}

// AsFloat приводит значение к float64.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsMoney разбирает сумму, сохранённую числом или строкой.
func AsMoney(v any) domain.Money {
	switch x := v.(type) {
	case string:
		if m, err := domain.ParseMoney(strings.TrimSpace(x)); err == nil {
			return m
		}
	case json.Number:
		if m, err := domain.ParseMoney(x.String()); err == nil {
			return m
		}
	}
	if f, ok := AsFloat(v); ok {
		return domain.MoneyFromFloat(f)
	}
	return domain.Zero()
}

// AsTime разбирает время: time.Time (firestore) или строку RFC3339 (JSON-бэкенды).
func AsTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return x.UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}

// AsMap приводит значение к вложенному документу.
func AsMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case domain.Document:
		return map[string]any(x), true
	default:
		return nil, false
	}
}

// AsSlice приводит значение к списку.
func AsSlice(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []map[string]any:
		out := make([]any, 0, len(x))
		for _, m := range x {
			out = append(out, m)
		}
		return out
	default:
		return nil
	}
}

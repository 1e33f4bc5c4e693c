package document

import (
	"reflect"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Matches проверяет, что документ удовлетворяет всем условиям равенства.
func Matches(doc domain.Document, filters []domain.Filter) bool {
	for _, f := range filters {
		if !Equal(doc[f.Field], f.Value) {
			return false
		}
	}
	return true
}

// Equal сравнивает значения полей; числа сравниваются по значению независимо от типа.
func Equal(a, b any) bool {
	sa, strA := a.(string)
	sb, strB := b.(string)
	switch {
	case strA && strB:
		return sa == sb
	case strA || strB:
		return false
	}
	fa, okA := AsFloat(a)
	fb, okB := AsFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// Compare упорядочивает значения полей: время, затем числа, затем строки.
// Отсутствующее значение меньше любого присутствующего.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ta, ok := AsTime(a); ok {
		if tb, ok := AsTime(b); ok {
			return ta.Compare(tb)
		}
	}
	_, strA := a.(string)
	_, strB := b.(string)
	if !strA && !strB {
		fa, okA := AsFloat(a)
		fb, okB := AsFloat(b)
		if okA && okB {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(AsString(a), AsString(b))
}

// Apply фильтрует, сортирует и ограничивает выборку так, как это делает удалённое хранилище.
// Равные по ключам сортировки документы упорядочиваются по ID.
func Apply(snaps []domain.Snapshot, q domain.Query) []domain.Snapshot {
	out := make([]domain.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if Matches(s.Data, q.Where) {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := Compare(out[i].Data[o.Field], out[j].Data[o.Field])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

package sched

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// maxRenderedLen is the number of characters a scalar argument keeps before
// it is trimmed for signatures and displays.
const maxRenderedLen = 6

// renderShort renders an argument value in the compact canonical form used
// for signature hashing and human-readable signatures. Containers collapse
// to their bracket shape; scalars are trimmed.
func renderShort(v any) string {
	if v == nil {
		return "nil"
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "nil"
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return "[..]"
	case reflect.Map:
		return "{..}"
	case reflect.Struct:
		return "(..)"
	default:
		s := fmt.Sprint(rv.Interface())
		if runes := []rune(s); len(runes) > maxRenderedLen {
			return string(runes[:maxRenderedLen]) + ".."
		}
		return s
	}
}

// renderArgs renders a keyword-argument map as "k=v, k=v" with keys sorted,
// so equivalent calls always render identically.
func renderArgs(args Args) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, renderShort(args[k])))
	}
	return strings.Join(parts, ", ")
}

// ordinal returns the suffixed day-of-month literal ("1st", "22nd", "31st").
func ordinal(day int) string {
	switch {
	case day%100 >= 11 && day%100 <= 13:
		return fmt.Sprintf("%dth", day)
	case day%10 == 1:
		return fmt.Sprintf("%dst", day)
	case day%10 == 2:
		return fmt.Sprintf("%dnd", day)
	case day%10 == 3:
		return fmt.Sprintf("%drd", day)
	default:
		return fmt.Sprintf("%dth", day)
	}
}

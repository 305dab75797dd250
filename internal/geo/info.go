package geo

import (
	"fmt"
	"html"
	"reflect"
	"sort"
	"strings"
)

// Info builds the popup for a feature: a display name and "key: value" lines
// joined with <br>, HTML-escaped. Empty values and geometry are left out.
// The name is the mmsi, else name, else id, else "Unknown".
func Info(props map[string]any) (name, text string) {
	name = "Unknown"
	for _, key := range []string{"mmsi", "name", "id"} {
		if v, ok := props[key]; ok {
			name = fmt.Sprint(v)
			break
		}
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		if k == "geometry" || strings.HasPrefix(k, "_") || isEmpty(props[k]) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = html.EscapeString(k) + ": " + html.EscapeString(fmt.Sprint(props[k]))
	}
	return name, strings.Join(lines, "<br>")
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

package service

import (
	"fmt"
	"net/url"
	"strconv"
)

// Filters are optional query parameters of list reads. Nil values are
// ignored; slices become repeated parameters.
type Filters map[string]any

// Values encodes the filters as query parameters.
func (f Filters) Values() url.Values {
	values := url.Values{}
	for name, v := range f {
		if v == nil {
			continue
		}
		switch tv := v.(type) {
		case []string:
			for _, s := range tv {
				values.Add(name, s)
			}
		case []any:
			for _, item := range tv {
				values.Add(name, formatValue(item))
			}
		default:
			values.Set(name, formatValue(v))
		}
	}
	return values
}

// params returns the filters in cache key form, nil when empty.
func (f Filters) params() map[string]any {
	if len(f) == 0 {
		return nil
	}
	out := make(map[string]any, len(f))
	for name, v := range f {
		if v != nil {
			out[name] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func formatValue(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case bool:
		return strconv.FormatBool(tv)
	case int:
		return strconv.Itoa(tv)
	case fmt.Stringer:
		return tv.String()
	default:
		return fmt.Sprint(tv)
	}
}

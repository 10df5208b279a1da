package wizard

import (
	"strings"
	"time"
)

// Draft maps field names to values: string, bool, number, time.Time or []Entry.
type Draft map[string]interface{}

// Entry is one record of a repeatable list (academic history, employment, reference...).
type Entry map[string]interface{}

// Clone deep-copies the draft, including every entry of every list.
func (d Draft) Clone() Draft {
	if d == nil {
		return nil
	}
	out := make(Draft, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func (e Entry) Clone() Entry {
	if e == nil {
		return nil
	}
	out := make(Entry, len(e))
	for k, v := range e {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []Entry:
		out := make([]Entry, len(val))
		for i, e := range val {
			out[i] = e.Clone()
		}
		return out
	case Entry:
		return val.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Entry(val).Clone())
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// IsEmpty reports whether a value fails a "required" check.
// Numbers count as filled in as soon as they are present.
func IsEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case bool:
		return !val
	case time.Time:
		return val.IsZero()
	case *time.Time:
		return val == nil || val.IsZero()
	case []Entry:
		return len(val) == 0
	case []interface{}:
		return len(val) == 0
	case []map[string]interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	default:
		return false
	}
}

package store

import (
	"encoding/json"
	"regexp"
	"time"
)

// isoTimestamp matches strings written by Encode for time.Time values.
var isoTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`)

// Encode serializes v. Timestamps are written as RFC 3339 with nanoseconds.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserializes data into out. Typed targets restore time.Time through
// their field types. Untyped targets (*any, *map[string]any, *[]any) get
// timestamp-shaped strings revived into time.Time.
func Decode(data []byte, out any) error {
	switch target := out.(type) {
	case *any:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*target = revive(v)
		return nil
	case *map[string]any:
		var v map[string]any
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		for k, e := range v {
			v[k] = revive(e)
		}
		*target = v
		return nil
	case *[]any:
		var v []any
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		for i, e := range v {
			v[i] = revive(e)
		}
		*target = v
		return nil
	}
	return json.Unmarshal(data, out)
}

func revive(v any) any {
	switch t := v.(type) {
	case string:
		if !isoTimestamp.MatchString(t) {
			return t
		}
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return t
		}
		return ts
	case map[string]any:
		for k, e := range t {
			t[k] = revive(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = revive(e)
		}
		return t
	}
	return v
}

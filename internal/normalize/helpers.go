package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"betflow/internal/selkey"
	"betflow/models"
)

// decode unmarshals a raw payload into a generic tree. A nil result means
// the payload was not valid JSON; callers reject rather than guess.
func decode(data []byte) interface{} {
	var node interface{}
	if err := json.Unmarshal(data, &node); err != nil {
		return nil
	}
	return node
}

// firstElement unwraps one-element (or longer) array wrappers: some
// producers wrap a single update in an array.
func firstElement(node interface{}) interface{} {
	if arr, ok := node.([]interface{}); ok {
		if len(arr) == 0 {
			return nil
		}
		return arr[0]
	}
	return node
}

func asObject(node interface{}) (map[string]interface{}, bool) {
	obj, ok := node.(map[string]interface{})
	return obj, ok
}

// objectField walks a dotted path of object fields.
func objectField(obj map[string]interface{}, path ...string) (interface{}, bool) {
	var cur interface{} = obj
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// textField returns the first present, non-empty alias rendered as a
// string, or the display placeholder when every alias is absent.
func textField(obj map[string]interface{}, aliases ...string) string {
	for _, key := range aliases {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		s := selkey.Normalize(v)
		if s != "" {
			return s
		}
	}
	return models.TextPlaceholder
}

// idField is textField without the placeholder: identity fields must not
// be synthesized.
func idField(obj map[string]interface{}, aliases ...string) string {
	for _, key := range aliases {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		if s := selkey.Normalize(v); s != "" {
			return s
		}
	}
	return ""
}

func floatField(obj map[string]interface{}, aliases ...string) float64 {
	for _, key := range aliases {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

// boolState interprets the loose encodings of "in play" seen on the wire:
// booleans, 0/1 numbers and string forms. Absence stays unknown.
func boolState(obj map[string]interface{}, aliases ...string) models.InPlayState {
	for _, key := range aliases {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		switch b := v.(type) {
		case bool:
			if b {
				return models.InPlayYes
			}
			return models.InPlayNo
		case float64:
			if b != 0 {
				return models.InPlayYes
			}
			return models.InPlayNo
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "1", "yes", "y":
				return models.InPlayYes
			case "false", "0", "no", "n":
				return models.InPlayNo
			}
		}
	}
	return models.InPlayUnknown
}

func plainBool(obj map[string]interface{}, aliases ...string) bool {
	return boolState(obj, aliases...) == models.InPlayYes
}

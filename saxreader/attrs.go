package saxreader

import (
	"strconv"

	"github.com/orisano/gosax"
)

// Attribute is a single decoded name/value pair from a start element.
type Attribute struct {
	Name  string
	Value string
}

// Attrs is the ordered set of attributes on a start element, with typed
// accessors that fall back to a caller-supplied default on any parse
// failure (spec.md §4.3).
type Attrs []Attribute

// parseAttrs decodes the raw tag bytes following the element name (as
// split by gosax.Name) into an Attrs slice.
func parseAttrs(rest []byte) (Attrs, error) {
	var out Attrs
	for len(rest) > 0 {
		attr, tail, err := gosax.NextAttribute(rest)
		if err != nil {
			return out, err
		}
		if attr.Key == nil {
			break
		}
		val := attr.Value
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') {
			val = val[1 : len(val)-1]
		}
		unescaped, err := gosax.Unescape(append([]byte(nil), val...))
		if err != nil {
			unescaped = val
		}
		out = append(out, Attribute{Name: string(attr.Key), Value: string(unescaped)})
		rest = tail
	}
	return out, nil
}

// Get returns the raw string value of the named attribute and whether it
// was present.
func (a Attrs) Get(name string) (string, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// GetString returns the named attribute's value, or def if absent.
func (a Attrs) GetString(name, def string) string {
	if v, ok := a.Get(name); ok {
		return v
	}
	return def
}

// GetInt32 parses the named attribute as a base-10 int32, returning def
// on absence or parse failure.
func (a Attrs) GetInt32(name string, def int32) int32 {
	v, ok := a.Get(name)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return def
	}
	return int32(n)
}

// GetFloat64 parses the named attribute as a float64, returning def on
// absence or parse failure.
func (a Attrs) GetFloat64(name string, def float64) float64 {
	v, ok := a.Get(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// GetFloat32 parses the named attribute as a float32, returning def on
// absence or parse failure.
func (a Attrs) GetFloat32(name string, def float32) float32 {
	v, ok := a.Get(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return def
	}
	return float32(f)
}

// GetBool parses the named attribute as a bool ("true"/"false"/"1"/"0"),
// returning def on absence or parse failure.
func (a Attrs) GetBool(name string, def bool) bool {
	v, ok := a.Get(name)
	if !ok {
		return def
	}
	switch v {
	case "1", "true", "True", "TRUE":
		return true
	case "0", "false", "False", "FALSE":
		return false
	default:
		return def
	}
}

// GetTimeMinutes parses the named attribute as an ISO-8601 duration
// ("PT1.0S", "PT30M", "PT1H") into minutes, returning def on absence or
// parse failure.
func (a Attrs) GetTimeMinutes(name string, def float64) float64 {
	v, ok := a.Get(name)
	if !ok {
		return def
	}
	minutes, err := parseISO8601Minutes(v)
	if err != nil {
		return def
	}
	return minutes
}
